package mqttws

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrTypeAlreadyBound reports a publisher binding conflict: a message
	// type can map to exactly one topic.
	ErrTypeAlreadyBound = errors.New("message type already bound to a topic")

	// ErrTypeNotBound reports a publish of a message whose type was never
	// bound to a topic.
	ErrTypeNotBound = errors.New("message type is not bound to a topic")
)

// Multiplexer binds application message types to topic names for outbound
// publishing and topic names to local-subscriber callbacks for inbound
// delivery. Publisher bindings are one-to-one per message type; subscriber
// bindings are many-to-many.
//
// Bindings are set up once at application start; conflicts fail fast at
// setup time, not at publish time.
type Multiplexer struct {
	mu          sync.RWMutex
	publishers  map[reflect.Type]string
	subscribers map[string]map[uintptr]LocalSubscriber
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		publishers:  make(map[reflect.Type]string),
		subscribers: make(map[string]map[uintptr]LocalSubscriber),
	}
}

// BindPublisher binds the message type of prototype to the topic.
// Re-binding the same type to the same topic is a no-op; binding it to a
// different topic returns ErrTypeAlreadyBound.
func (m *Multiplexer) BindPublisher(topic string, prototype any) error {
	msgType := reflect.TypeOf(prototype)
	if msgType == nil {
		return fmt.Errorf("%w: untyped nil prototype", ErrTypeNotBound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.publishers[msgType]; ok {
		if previous == topic {
			return nil
		}
		return fmt.Errorf("%w: %s is bound to %q", ErrTypeAlreadyBound, msgType, previous)
	}

	m.publishers[msgType] = topic
	return nil
}

// BindSubscriber binds the callback to the topic. Multiple callbacks can be
// bound to one topic, and one callback can be bound to multiple topics;
// binding the same callback to the same topic twice is a no-op.
func (m *Multiplexer) BindSubscriber(topic string, subscriber LocalSubscriber) {
	key := reflect.ValueOf(subscriber).Pointer()

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subscribers[topic]
	if !ok {
		set = make(map[uintptr]LocalSubscriber)
		m.subscribers[topic] = set
	}
	set[key] = subscriber
}

// TopicFor returns the topic bound to the message's runtime type.
func (m *Multiplexer) TopicFor(msg any) (string, error) {
	msgType := reflect.TypeOf(msg)

	m.mu.RLock()
	defer m.mu.RUnlock()

	topic, ok := m.publishers[msgType]
	if !ok {
		return "", fmt.Errorf("%w: %v, use BindPublisher first", ErrTypeNotBound, msgType)
	}
	return topic, nil
}

// Topics returns every topic referenced by a publisher or subscriber
// binding, so all of them can be declared at startup.
func (m *Multiplexer) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(m.publishers)+len(m.subscribers))
	var topics []string

	for _, topic := range m.publishers {
		if _, ok := seen[topic]; !ok {
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	for topic := range m.subscribers {
		if _, ok := seen[topic]; !ok {
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}

	return topics
}
