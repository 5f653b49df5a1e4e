// Package mqtt provides MQTT client connectivity for the grayhub bridge
// engine.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the link between the hub and the Matter runtime processes that
// host the commissionable bridges. The hub publishes endpoint descriptions
// and state; runtimes publish controller commands and fabric changes.
//
//	Home Assistant ↔ grayhub ↔ MQTT Broker ↔ Matter runtime
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Anonymous access is only for local development
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Runtime.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(topics.DeviceState(bridgeID, 2), state, true)
package mqtt
