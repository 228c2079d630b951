// Package mqtt provides MQTT client connectivity for the device server.
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
// The server uses MQTT as its announcement bus. Each worker process
// holds its own connection and publishes its status and its devices'
// lifecycle transitions; acquisition software and dashboards subscribe
// without touching the rpc control channel. A worker that dies without
// a graceful disconnect is reported offline by its LWT.
//
//	parent server ─┐
//	worker per dev ─┼─ MQTT broker ─ dashboards, acquisition software
//	worker per dev ─┘
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
//	// Watch every worker's status
//	err = client.Subscribe(mqtt.Topics{}.AllWorkerStatus(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
