// Package mqttws implements a lightweight publish/subscribe broker speaking
// a QoS 0 subset of MQTT 3.1.1 over WebSocket.
//
// The broker accepts browser and native clients over WebSocket (binary
// frames, subprotocol "mqtt") or QUIC, reassembles MQTT control packets from
// arbitrarily fragmented frames, and fans published messages out to every
// subscriber of the message's topic.
//
// # Packet Types
//
// The package provides structs for the MQTT 3.1.1 control packets:
//
//   - ConnectPacket, ConnackPacket: Connection establishment
//   - PublishPacket, PubackPacket, PubrecPacket, PubrelPacket, PubcompPacket: Message delivery
//   - SubscribePacket, SubackPacket: Topic subscription
//   - UnsubscribePacket, UnsubackPacket: Topic unsubscription
//   - PingreqPacket, PingrespPacket: Keep-alive
//   - DisconnectPacket: Connection termination
//
// Use DecodePacket and EncodePacket to convert between packet structs and
// their wire form, and Assembler to cut complete packets out of a fragmented
// byte stream.
//
// # Broker
//
// Broker ties the pieces together: it upgrades HTTP requests to WebSocket
// connections, runs the per-connection protocol state machine, and routes
// publishes through a Backend:
//
//	broker := mqttws.NewBroker(nil,
//	    mqttws.WithLogger(logger),
//	)
//	broker.DeclareTopic("rooms/lobby")
//
//	http.Handle("/mqtt", broker.HTTPHandler(ctx))
//
// The default MemoryBackend keeps all state in process. The Backend
// interface allows replacing it with a distributed implementation.
//
// # Typed Messages
//
// The Multiplexer maps Go message types to topics, so application code can
// publish structs and register typed callbacks instead of handling raw
// payloads:
//
//	broker.BindPublisher("rooms/events", RoomEvent{})
//	broker.BindSubscriber("rooms/events", handleRoomEvent)
//
// # Client
//
// Client is a minimal synchronous MQTT 3.1.1 client used for testing and
// tooling:
//
//	transport, err := mqttws.NewWSDialer().Dial(ctx, "ws://localhost:8080/mqtt")
//	client := mqttws.NewClient(transport, mqttws.WithClientID("tool"))
//	connack, err := client.Connect(ctx)
package mqttws
