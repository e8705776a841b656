// Package mqtt provides MQTT client connectivity for DiscoAVR Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// DiscoAVR uses MQTT as an optional integration bus: the service publishes
// retained receiver state snapshots and lifecycle events, and accepts
// command names or raw protocol strings from other home-automation systems.
//
//	DiscoAVR Core ↔ MQTT Broker ↔ Home automation (Home Assistant, Node-RED, ...)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Accept commands from the bus
//	err = client.Subscribe(mqtt.Topics{}.AVRCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        return controller.SendCommand(ctx, string(payload))
//	    })
//
//	// Publish a retained state snapshot
//	client.PublishRetained(mqtt.Topics{}.AVRState(), stateJSON)
package mqtt
