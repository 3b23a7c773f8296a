// Package mqtt publishes nvdisplay status and attribute state to an MQTT
// broker and accepts attribute commands from it.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees and retained state
//   - Wildcard subscriptions restored after reconnect
//   - An optional Last Will and Testament for offline detection
//
// # Topics
//
//	nvdisplay/status                        retained service status, LWT
//	nvdisplay/state/<display>/<attribute>   retained last-known value
//	nvdisplay/command/<display>/<attribute> set requests
//	nvdisplay/event/<type>                  notifications
//
// # Usage
//
//	lwt, _ := hotplug.LWTPayload()
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Will{
//	    Topic: mqtt.Topics{}.Status(), Payload: lwt, QoS: 1, Retained: true,
//	}))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// TLS should be enabled whenever the broker is not on localhost.
package mqtt
