package mqttws

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// BackendOption configures a MemoryBackend.
type BackendOption func(*MemoryBackend)

// WithBackendLogger sets the backend logger.
func WithBackendLogger(logger Logger) BackendOption {
	return func(b *MemoryBackend) {
		b.logger = logger
	}
}

// WithBackendMetrics sets the backend metrics collector.
func WithBackendMetrics(metrics Metrics) BackendOption {
	return func(b *MemoryBackend) {
		b.metrics = metrics
	}
}

type memoryConn struct {
	sender   Sender
	clientID string
	// connected flips on CONNECT and off on DISCONNECT; an attached but
	// disconnected connection may not subscribe.
	connected bool
}

// MemoryBackend is the in-memory Backend implementation.
//
// All state lives behind one registry-scoped lock: the connection table,
// the declared-topic set, and the per-topic subscriber sets are mutated
// concurrently by every connection's task. Fan-out snapshots the subscriber
// senders under the read lock and delivers outside of it, so a slow
// subscriber never blocks registry mutation.
type MemoryBackend struct {
	logger  Logger
	metrics Metrics

	nextID atomic.Uint64

	mu          sync.RWMutex
	conns       map[ConnID]*memoryConn
	available   map[string]struct{}
	subscribers map[string]map[ConnID]struct{}
	local       map[string]map[uintptr]LocalSubscriber
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts ...BackendOption) *MemoryBackend {
	b := &MemoryBackend{
		logger:      NewNoOpLogger(),
		metrics:     &NoOpMetrics{},
		conns:       make(map[ConnID]*memoryConn),
		available:   make(map[string]struct{}),
		subscribers: make(map[string]map[ConnID]struct{}),
		local:       make(map[string]map[uintptr]LocalSubscriber),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Attach registers a live transport connection and returns its id.
func (b *MemoryBackend) Attach(sender Sender) ConnID {
	id := ConnID(b.nextID.Add(1))

	b.mu.Lock()
	b.conns[id] = &memoryConn{sender: sender}
	b.mu.Unlock()

	b.metrics.Gauge(MetricConnections, nil).Inc()
	b.logger.Debug("connection attached", LogFields{LogFieldConnID: id})

	return id
}

// Detach removes the connection from the table and sweeps its subscriptions.
func (b *MemoryBackend) Detach(id ConnID) {
	b.mu.Lock()

	if _, ok := b.conns[id]; !ok {
		b.mu.Unlock()
		return
	}

	b.sweepSubscriptionsLocked(id)
	delete(b.conns, id)
	b.mu.Unlock()

	b.metrics.Gauge(MetricConnections, nil).Dec()
	b.logger.Debug("connection detached", LogFields{LogFieldConnID: id})
}

// EnsureTopicExists declares a topic as publishable and subscribable.
func (b *MemoryBackend) EnsureTopicExists(topic string) bool {
	topic = NormalizeTopic(topic)
	if err := ValidateTopicName(topic); err != nil {
		b.logger.Error("invalid topic name", LogFields{
			LogFieldTopic: topic,
			LogFieldError: err.Error(),
		})
		return false
	}

	b.mu.Lock()
	b.available[topic] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("topic declared", LogFields{LogFieldTopic: topic})
	return true
}

// Connect binds a client identifier to an attached connection.
func (b *MemoryBackend) Connect(id ConnID, identifier string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns[id]
	if !ok {
		b.logger.Error("cannot connect: unknown connection", LogFields{LogFieldConnID: id})
		return false
	}

	if conn.connected {
		b.logger.Error("client already connected on this connection", LogFields{
			LogFieldConnID:   id,
			LogFieldClientID: conn.clientID,
		})
		return false
	}

	conn.clientID = identifier
	conn.connected = true

	b.metrics.Counter(MetricConnectionsTotal, nil).Inc()
	b.logger.Debug("client connected", LogFields{
		LogFieldConnID:   id,
		LogFieldClientID: identifier,
	})

	return true
}

// Subscribe adds the connection to the topic's remote-subscriber set.
func (b *MemoryBackend) Subscribe(id ConnID, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns[id]
	if !ok || !conn.connected {
		b.logger.Error("cannot subscribe: client is not connected", LogFields{LogFieldConnID: id})
		return false
	}

	if _, ok := b.available[topic]; !ok {
		b.logger.Error("cannot subscribe: topic is not available", LogFields{
			LogFieldConnID: id,
			LogFieldTopic:  topic,
		})
		return false
	}

	set, ok := b.subscribers[topic]
	if !ok {
		set = make(map[ConnID]struct{})
		b.subscribers[topic] = set
	}

	if _, ok := set[id]; !ok {
		set[id] = struct{}{}
		b.metrics.Gauge(MetricSubscriptions, nil).Inc()
	}

	b.logger.Debug("client subscribed", LogFields{
		LogFieldConnID:   id,
		LogFieldClientID: conn.clientID,
		LogFieldTopic:    topic,
	})

	return true
}

// Unsubscribe removes the connection from the topic's subscriber set.
func (b *MemoryBackend) Unsubscribe(id ConnID, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns[id]
	if !ok || !conn.connected {
		b.logger.Error("cannot unsubscribe: client is not connected", LogFields{LogFieldConnID: id})
		return false
	}

	set, ok := b.subscribers[topic]
	if !ok {
		b.logger.Error("client is not subscribed to topic", LogFields{
			LogFieldConnID:   id,
			LogFieldClientID: conn.clientID,
			LogFieldTopic:    topic,
		})
		return false
	}

	if _, ok := set[id]; !ok {
		b.logger.Error("client is not subscribed to topic", LogFields{
			LogFieldConnID:   id,
			LogFieldClientID: conn.clientID,
			LogFieldTopic:    topic,
		})
		return false
	}

	delete(set, id)
	b.metrics.Gauge(MetricSubscriptions, nil).Dec()
	if len(set) == 0 {
		// Prune the subscriber-set entry, not the topic declaration
		delete(b.subscribers, topic)
	}

	b.logger.Debug("client unsubscribed", LogFields{
		LogFieldConnID:   id,
		LogFieldClientID: conn.clientID,
		LogFieldTopic:    topic,
	})

	return true
}

// Disconnect sweeps every subscription of the connection and clears its
// identity. Always succeeds.
func (b *MemoryBackend) Disconnect(id ConnID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns[id]
	if !ok || !conn.connected {
		b.logger.Warn("disconnect of a connection that is not connected", LogFields{LogFieldConnID: id})
		return true
	}

	b.sweepSubscriptionsLocked(id)

	b.logger.Debug("client disconnected", LogFields{
		LogFieldConnID:   id,
		LogFieldClientID: conn.clientID,
	})

	conn.clientID = ""
	conn.connected = false

	return true
}

// sweepSubscriptionsLocked removes the connection from every topic's
// subscriber set, pruning sets that become empty. Callers hold b.mu.
func (b *MemoryBackend) sweepSubscriptionsLocked(id ConnID) {
	for topic, set := range b.subscribers {
		if _, ok := set[id]; !ok {
			continue
		}

		delete(set, id)
		b.metrics.Gauge(MetricSubscriptions, nil).Dec()
		if len(set) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// Publish delivers the encoded packet bytes to every remote subscriber.
func (b *MemoryBackend) Publish(ctx context.Context, topic string, packet []byte) error {
	b.mu.RLock()
	senders := make([]Sender, 0, len(b.subscribers[topic]))
	for id := range b.subscribers[topic] {
		if conn, ok := b.conns[id]; ok {
			senders = append(senders, conn.sender)
		}
	}
	b.mu.RUnlock()

	b.logger.Debug("publishing to remote subscribers", LogFields{
		LogFieldTopic:       topic,
		LogFieldSubscribers: len(senders),
	})

	b.metrics.Counter(MetricPublishes, nil).Inc()

	start := time.Now()
	defer func() {
		b.metrics.Histogram(MetricFanoutDuration, nil).ObserveDuration(time.Since(start))
	}()

	g, _ := errgroup.WithContext(ctx)
	for _, sender := range senders {
		g.Go(func() error {
			if err := sender.SendPacket(packet); err != nil {
				b.logger.Error("fan-out delivery failed", LogFields{
					LogFieldTopic: topic,
					LogFieldError: err.Error(),
				})
				return err
			}
			b.metrics.Counter(MetricFanoutDeliveries, nil).Inc()
			return nil
		})
	}

	return g.Wait()
}

// NotifyLocalSubscribers delivers the payload to every in-process callback
// registered for the topic.
func (b *MemoryBackend) NotifyLocalSubscribers(ctx context.Context, topic string, message []byte) error {
	b.mu.RLock()
	callbacks := make([]LocalSubscriber, 0, len(b.local[topic]))
	for _, cb := range b.local[topic] {
		callbacks = append(callbacks, cb)
	}
	b.mu.RUnlock()

	b.logger.Debug("notifying local subscribers", LogFields{
		LogFieldTopic:       topic,
		LogFieldSubscribers: len(callbacks),
	})

	g, _ := errgroup.WithContext(ctx)
	for _, cb := range callbacks {
		g.Go(func() error {
			return cb(ctx, topic, message)
		})
	}

	return g.Wait()
}

// RegisterLocalSubscriber adds a callback to the topic's local-subscriber set.
// The set keys on the callback's function identity, so registering the same
// callback twice is a no-op.
func (b *MemoryBackend) RegisterLocalSubscriber(topic string, subscriber LocalSubscriber) {
	key := reflect.ValueOf(subscriber).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.local[topic]
	if !ok {
		set = make(map[uintptr]LocalSubscriber)
		b.local[topic] = set
	}
	set[key] = subscriber
}

// RemoteSubscriberCount returns the number of remote subscribers currently
// registered for the topic. Zero also means the subscriber-set entry itself
// has been pruned or never existed.
func (b *MemoryBackend) RemoteSubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// TopicDeclared reports whether the topic has been declared.
func (b *MemoryBackend) TopicDeclared(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.available[NormalizeTopic(topic)]
	return ok
}

// Identity returns the client identifier bound to the connection, if any.
func (b *MemoryBackend) Identity(id ConnID) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	conn, ok := b.conns[id]
	if !ok || !conn.connected {
		return "", false
	}
	return conn.clientID, true
}
