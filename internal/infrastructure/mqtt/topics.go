package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the root of every stripgate topic.
const TopicPrefix = "stripgate"

// Topics builds stripgate topic names.
//
//	topics := mqtt.Topics{}
//	topics.OutletState("10.0.0.5", 2) // "stripgate/state/10.0.0.5/2"
type Topics struct{}

// OutletState is the retained state topic for one outlet.
func (Topics) OutletState(address string, outlet int) string {
	return fmt.Sprintf("%s/state/%s/%d", TopicPrefix, address, outlet)
}

// OutletCommand is the topic the gateway listens on for switch commands.
func (Topics) OutletCommand(address string, outlet int) string {
	return fmt.Sprintf("%s/command/%s/%d", TopicPrefix, address, outlet)
}

// OutletAck carries the result of a command received over MQTT.
func (Topics) OutletAck(address string, outlet int) string {
	return fmt.Sprintf("%s/ack/%s/%d", TopicPrefix, address, outlet)
}

// SystemStatus carries online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllOutletCommands matches every command topic.
func (Topics) AllOutletCommands() string {
	return TopicPrefix + "/command/+/+"
}

// ParseOutletTopic extracts the strip address and outlet number from a
// state, command or ack topic. The outlet number is returned as written;
// range checks belong to the caller.
func ParseOutletTopic(topic string) (address string, outlet int, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	switch parts[1] {
	case "state", "command", "ack":
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	outlet, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, fmt.Errorf("%w: outlet %q is not a number", ErrInvalidTopic, parts[3])
	}
	return parts[2], outlet, nil
}
