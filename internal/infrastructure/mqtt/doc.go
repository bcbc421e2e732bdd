// Package mqtt provides the gateway's MQTT transport connector.
//
// This package manages:
//   - One broker connection per Client with an explicit lifecycle state
//   - Fire-and-forget publishing addressed by resource kind or raw topic
//   - Baseline subscriptions re-created on every connect
//   - Dispatch of inbound messages to a MessageSink by resource kind
//   - Last Will and Testament (LWT) for offline detection
//
// # Connection States
//
//	Disconnected --Connect--> Connecting --ok--> Connected
//	Connected --connection lost--> Reconnecting (auto-reconnect on)
//	Connected --connection lost--> Disconnected (auto-reconnect off)
//	Reconnecting --paho reconnects--> Connected
//	any --Disconnect--> Disconnected
//
// Sessions are clean, so subscriptions do not survive a reconnect. The
// connect handler is the only place baseline subscriptions are created.
//
// # Failure Semantics
//
// Transport failures are returned as errors wrapping the sentinels in
// errors.go and logged; nothing panics past the package boundary. Publish,
// Subscribe and Unsubscribe fail fast without I/O when the client is not
// Connected.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT,
//	    mqtt.WithName("device"),
//	    mqtt.WithBaseline(resource.ConstrainedSensorMsg, resource.ConstrainedActuatorResponse),
//	    mqtt.WithSink(hub),
//	    mqtt.WithObserver(hub),
//	)
//	if err := client.Connect(); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err := client.Publish(resource.ConstrainedActuatorCmd, payload, 1)
//
// Tests substitute the paho client with mqtttest.FakeClient via
// WithClientFactory.
package mqtt
