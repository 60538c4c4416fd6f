package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OutletStateMessage is published retained on the state topic after every
// successful switch.
type OutletStateMessage struct {
	Address   string    `json:"address"`
	Outlet    int       `json:"outlet"`
	Alias     string    `json:"alias"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// OutletCommandMessage is the payload expected on a command topic.
type OutletCommandMessage struct {
	State     string `json:"state"`
	RequestID string `json:"request_id,omitempty"`
}

// OutletAckMessage answers an OutletCommandMessage.
type OutletAckMessage struct {
	RequestID string    `json:"request_id,omitempty"`
	Success   bool      `json:"success"`
	State     string    `json:"state,omitempty"`
	Alias     string    `json:"alias,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseCommand decodes a command payload. The state is normalised to
// lower case and must be "on" or "off". A bare "on"/"off" body is also
// accepted for simple publishers.
func ParseCommand(payload []byte) (OutletCommandMessage, error) {
	var msg OutletCommandMessage

	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	} else {
		msg.State = trimmed
	}

	msg.State = strings.ToLower(msg.State)
	if msg.State != "on" && msg.State != "off" {
		return msg, fmt.Errorf("%w: state must be \"on\" or \"off\", got %q", ErrInvalidPayload, msg.State)
	}
	return msg, nil
}
