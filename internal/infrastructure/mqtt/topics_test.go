package mqtt

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.OutletState("10.0.0.5", 2), "stripgate/state/10.0.0.5/2"},
		{topics.OutletCommand("strip.lan", 1), "stripgate/command/strip.lan/1"},
		{topics.OutletAck("10.0.0.5", 3), "stripgate/ack/10.0.0.5/3"},
		{topics.SystemStatus(), "stripgate/system/status"},
		{topics.AllOutletCommands(), "stripgate/command/+/+"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseOutletTopic(t *testing.T) {
	tests := []struct {
		topic       string
		wantAddress string
		wantOutlet  int
		wantErr     bool
	}{
		{"stripgate/command/10.0.0.5/2", "10.0.0.5", 2, false},
		{"stripgate/state/strip.lan/0", "strip.lan", 0, false},
		{"stripgate/ack/10.0.0.5/-1", "10.0.0.5", -1, false},
		{"stripgate/command/10.0.0.5/two", "", 0, true},
		{"stripgate/command//2", "", 0, true},
		{"stripgate/system/status", "", 0, true},
		{"other/command/10.0.0.5/2", "", 0, true},
		{"stripgate/reboot/10.0.0.5/2", "", 0, true},
		{"stripgate/command/10.0.0.5/2/extra", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			address, outlet, err := ParseOutletTopic(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("error = %v, want ErrInvalidTopic", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if address != tt.wantAddress || outlet != tt.wantOutlet {
				t.Errorf("got (%q, %d), want (%q, %d)", address, outlet, tt.wantAddress, tt.wantOutlet)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload   string
		wantState string
		wantReqID string
		wantErr   bool
	}{
		{`{"state":"on"}`, "on", "", false},
		{`{"state":"OFF","request_id":"r-1"}`, "off", "r-1", false},
		{"on", "on", "", false},
		{" Off\n", "off", "", false},
		{`{"state":"toggle"}`, "", "", true},
		{`{"state":`, "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			msg, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.State != tt.wantState || msg.RequestID != tt.wantReqID {
				t.Errorf("got %+v, want state=%q request_id=%q", msg, tt.wantState, tt.wantReqID)
			}
		})
	}
}
