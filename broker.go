package mqttws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// BrokerOption configures a Broker.
type BrokerOption func(*brokerConfig)

type brokerConfig struct {
	logger        Logger
	metrics       Metrics
	maxPacketSize uint32
}

func defaultBrokerConfig() *brokerConfig {
	return &brokerConfig{
		logger:        NewNoOpLogger(),
		metrics:       &NoOpMetrics{},
		maxPacketSize: 256 * 1024, // 256KB
	}
}

// WithLogger sets the broker logger.
func WithLogger(logger Logger) BrokerOption {
	return func(c *brokerConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the broker metrics collector.
func WithMetrics(metrics Metrics) BrokerOption {
	return func(c *brokerConfig) {
		c.metrics = metrics
	}
}

// WithMaxPacketSize sets the maximum accepted packet size in bytes.
// Zero disables the limit.
func WithMaxPacketSize(size uint32) BrokerOption {
	return func(c *brokerConfig) {
		c.maxPacketSize = size
	}
}

// Broker is the application boundary of the pub/sub core. It owns a Backend
// and a Multiplexer, declares topics, and drives one protocol handler per
// transport connection.
type Broker struct {
	backend Backend
	mux     *Multiplexer
	config  *brokerConfig
}

// NewBroker creates a broker over the given backend.
// A nil backend gets an in-memory one sharing the broker's logger and metrics.
func NewBroker(backend Backend, opts ...BrokerOption) *Broker {
	config := defaultBrokerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if backend == nil {
		backend = NewMemoryBackend(
			WithBackendLogger(config.logger),
			WithBackendMetrics(config.metrics),
		)
	}

	return &Broker{
		backend: backend,
		mux:     NewMultiplexer(),
		config:  config,
	}
}

// Backend returns the broker's backend.
func (b *Broker) Backend() Backend {
	return b.backend
}

// DeclareTopic registers a topic as publishable and subscribable.
func (b *Broker) DeclareTopic(topic string) error {
	if !b.backend.EnsureTopicExists(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopicName, topic)
	}
	return nil
}

// BindPublisher binds an outbound message type to a topic.
func (b *Broker) BindPublisher(topic string, prototype any) error {
	return b.mux.BindPublisher(topic, prototype)
}

// BindSubscriber binds a local callback to a topic for inbound delivery.
func (b *Broker) BindSubscriber(topic string, subscriber LocalSubscriber) {
	b.mux.BindSubscriber(topic, subscriber)
	b.backend.RegisterLocalSubscriber(topic, subscriber)
}

// DeclareBoundTopics declares every topic referenced by a multiplexer
// binding. Call it once after setup, before serving connections.
func (b *Broker) DeclareBoundTopics() error {
	for _, topic := range b.mux.Topics() {
		if err := b.DeclareTopic(topic); err != nil {
			return err
		}
	}
	return nil
}

// Publisher returns the typed outbound publish interface.
func (b *Broker) Publisher() *Publisher {
	return &Publisher{broker: b}
}

// Publish frames the payload as a QoS 0 PUBLISH packet and delivers it to
// every remote subscriber of the topic.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	packet, err := EncodePacket(&PublishPacket{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return b.backend.Publish(ctx, topic, packet)
}

// HTTPHandler returns an http.Handler that upgrades requests to WebSocket
// and serves each connection until it closes.
func (b *Broker) HTTPHandler(ctx context.Context) http.Handler {
	return NewWSHandler(func(t Transport) {
		if err := b.ServeConn(ctx, t); err != nil {
			b.config.logger.Error("connection ended with error", LogFields{
				LogFieldRemoteAddr: t.RemoteAddr().String(),
				LogFieldError:      err.Error(),
			})
		}
	})
}

// transportSender adapts a Transport's frame writer to the backend's Sender.
type transportSender struct {
	transport Transport
}

// SendPacket writes one encoded packet as a single frame.
func (s *transportSender) SendPacket(data []byte) error {
	return s.transport.WriteFrame(data)
}

// ServeConn drives one transport connection until it closes: attach to the
// backend, reassemble fragments, hand complete packets to the protocol
// handler, and on any exit path run the backend's disconnect sweep and
// detach. The transport closing is the connection's only cancellation
// signal.
func (b *Broker) ServeConn(ctx context.Context, t Transport) error {
	sender := &transportSender{transport: t}
	connID := b.backend.Attach(sender)

	defer func() {
		b.backend.Disconnect(connID)
		b.backend.Detach(connID)
		t.Close()
	}()

	logger := b.config.logger.WithFields(LogFields{
		LogFieldConnID:     connID,
		LogFieldRemoteAddr: t.RemoteAddr().String(),
	})

	handler := NewHandler(b.backend, sender, connID,
		WithHandlerLogger(logger),
		WithHandlerMetrics(b.config.metrics),
	)
	assembler := NewAssembler()

	for {
		frame, err := t.ReadFrame()
		if err != nil {
			// Transport closed, cleanly or not; the deferred disconnect
			// sweep removes this connection from every topic
			logger.Debug("transport closed", LogFields{LogFieldError: err.Error()})
			return nil
		}

		if b.config.maxPacketSize > 0 && uint32(assembler.Buffered()+len(frame)) > b.config.maxPacketSize+8 {
			logger.Warn("dropping connection: packet exceeds maximum size", nil)
			return ErrPacketTooLarge
		}

		packets, err := assembler.Feed(frame)
		for _, raw := range packets {
			if herr := handler.HandlePacket(ctx, raw); herr != nil {
				if errors.Is(herr, ErrCloseConnection) {
					return nil
				}
				return herr
			}
		}
		if err != nil {
			// Malformed remaining length is fatal for the connection
			logger.Error("fragment reassembly failed", LogFields{LogFieldError: err.Error()})
			return err
		}
	}
}

// Publisher translates typed application messages into topic publishes. The
// message's runtime type selects the topic via the multiplexer's publisher
// bindings; the message body is serialized as JSON.
type Publisher struct {
	broker *Broker
}

// Publish serializes the message and delivers it to the topic bound to the
// message's type. An unbound type is a usage error reported immediately.
func (p *Publisher) Publish(ctx context.Context, msg any) error {
	topic, err := p.broker.mux.TopicFor(msg)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.broker.Publish(ctx, topic, payload)
}
