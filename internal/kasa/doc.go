// Package kasa is a client for the local TCP protocol spoken by TP-Link Kasa
// smart plugs and power strips.
//
// Every request is a JSON document sent on a fresh TCP connection to port
// 9999. On the wire each message is a 4-byte big-endian length followed by
// the JSON bytes obfuscated with an XOR autokey cipher whose key starts at
// 171 and is replaced by each ciphertext byte.
//
// Two commands are used:
//
//	{"system":{"get_sysinfo":{}}}
//	{"context":{"child_ids":["<id>"]},"system":{"set_relay_state":{"state":1}}}
//
// The client holds no per-device state. Callers that want a cached view of
// a strip keep the SysInfo returned by Client.SysInfo.
//
// Usage:
//
//	client := kasa.NewClient(kasa.Config{ConnectTimeout: 5 * time.Second})
//	info, err := client.SysInfo(ctx, "10.0.0.5")
//	if err != nil {
//	    return err
//	}
//	err = client.SetRelayState(ctx, "10.0.0.5", kasa.ChildID(info.DeviceID, info.Children[1].ID), true)
package kasa
