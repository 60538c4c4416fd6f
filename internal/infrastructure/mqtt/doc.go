// Package mqtt connects stripgate to an MQTT broker.
//
// The gateway uses the broker in both directions:
//
//	stripgate/state/{address}/{outlet}    retained outlet state after a switch
//	stripgate/command/{address}/{outlet}  {"state":"on"} or {"state":"off"}
//	stripgate/ack/{address}/{outlet}      result of each MQTT command
//	stripgate/system/status               online/offline, with LWT
//
// This package manages:
//   - Connection with auto-reconnect and exponential backoff
//   - Publishing with QoS validation
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament for offline detection
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllOutletCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        address, outlet, err := mqtt.ParseOutletTopic(topic)
//	        ...
//	    })
package mqtt
