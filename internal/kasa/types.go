package kasa

import "strings"

// SysInfo is the get_sysinfo reply. Only the fields the gateway uses are
// decoded.
type SysInfo struct {
	Alias           string  `json:"alias"`
	DeviceID        string  `json:"deviceId"`
	Model           string  `json:"model"`
	MAC             string  `json:"mac"`
	SoftwareVersion string  `json:"sw_ver"`
	RelayState      int     `json:"relay_state"`
	Children        []Child `json:"children"`
	ErrCode         int     `json:"err_code"`
	ErrMsg          string  `json:"err_msg,omitempty"`
}

// Child is one outlet of a strip. Children are reported in physical order.
type Child struct {
	ID     string `json:"id"`
	Alias  string `json:"alias"`
	State  int    `json:"state"`
	OnTime int    `json:"on_time"`
}

// On reports whether the outlet relay is closed.
func (c Child) On() bool {
	return c.State == 1
}

// ChildID returns the id to address a child with. Older firmware reports
// child ids as a two-digit suffix; the full id is the parent deviceId plus
// that suffix.
func ChildID(deviceID, id string) string {
	if strings.HasPrefix(id, deviceID) {
		return id
	}
	return deviceID + id
}

type request struct {
	Context *requestContext `json:"context,omitempty"`
	System  systemRequest   `json:"system"`
}

type requestContext struct {
	ChildIDs []string `json:"child_ids"`
}

type systemRequest struct {
	GetSysinfo    *struct{}   `json:"get_sysinfo,omitempty"`
	SetRelayState *relayState `json:"set_relay_state,omitempty"`
}

type relayState struct {
	State int `json:"state"`
}

type response struct {
	System struct {
		GetSysinfo    *SysInfo   `json:"get_sysinfo"`
		SetRelayState *errorOnly `json:"set_relay_state"`
	} `json:"system"`
}

type errorOnly struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg,omitempty"`
}
