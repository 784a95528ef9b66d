package mqttws

import "context"

// ConnID identifies one attached transport connection inside a backend.
// Topic subscriber sets store ConnIDs rather than connection objects; the
// backend's connection table holds the live id-to-sender mapping and is the
// single place a connection must be removed from on close.
type ConnID uint64

// Sender is the send capability a backend holds for an attached connection.
// Implementations write one complete encoded control packet per call.
type Sender interface {
	SendPacket(data []byte) error
}

// LocalSubscriber is an in-process callback receiving publish payloads for a
// topic. The message is the raw application payload, before any framing.
type LocalSubscriber func(ctx context.Context, topic string, message []byte) error

// Backend is the broker state a protocol handler drives. The in-memory
// implementation is MemoryBackend; durable or distributed backends must
// preserve the same fail/succeed contracts.
//
// The calling connection is always passed explicitly as a ConnID. Operations
// returning bool report application-level acceptance; they never fail the
// connection itself.
type Backend interface {
	// Attach registers a live transport connection and returns its id.
	// Attach precedes CONNECT: an attached connection has no identity yet.
	Attach(sender Sender) ConnID

	// Detach removes the connection from the table and from every topic
	// subscriber set. It must be called exactly once when the transport
	// closes, and is the cleanup path for transports that vanish without a
	// DISCONNECT packet.
	Detach(id ConnID)

	// EnsureTopicExists declares a topic as publishable and subscribable.
	// A leading path separator is stripped before validation. Returns false
	// for names containing non-printable characters.
	EnsureTopicExists(topic string) bool

	// Connect binds a client identifier to the connection. Returns false if
	// the connection already has an identity (double CONNECT) or is unknown.
	Connect(id ConnID, identifier string) bool

	// Subscribe adds the connection to the topic's remote-subscriber set.
	// Fails if the connection never sent CONNECT or the topic was never
	// declared. Re-subscribing is idempotent, not additive.
	Subscribe(id ConnID, topic string) bool

	// Unsubscribe removes the connection from the topic's subscriber set.
	// Fails if the connection is not presently a subscriber. An emptied
	// subscriber set is pruned.
	Unsubscribe(id ConnID, topic string) bool

	// Disconnect removes the connection from every subscribed topic and
	// clears its identity. Always returns true, logging a warning when the
	// connection was not connected in the first place.
	Disconnect(id ConnID) bool

	// Publish delivers the encoded packet bytes to every remote subscriber
	// of the topic concurrently. A failing subscriber does not prevent
	// delivery to the others; the first failure is reported after all
	// deliveries finish.
	Publish(ctx context.Context, topic string, packet []byte) error

	// NotifyLocalSubscribers delivers the raw application payload to every
	// in-process callback registered for the topic, concurrently and
	// independently of remote delivery.
	NotifyLocalSubscribers(ctx context.Context, topic string, message []byte) error

	// RegisterLocalSubscriber adds a callback to the topic's local-subscriber
	// set. Registering the same callback twice is a no-op.
	RegisterLocalSubscriber(topic string, subscriber LocalSubscriber)
}
