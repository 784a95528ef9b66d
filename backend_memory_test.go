package mqttws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender captures every packet delivered to it.
type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *recordingSender) SendPacket(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.packets = append(s.packets, data)
	return nil
}

func (s *recordingSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.packets))
	copy(out, s.packets)
	return out
}

func TestMemoryBackendAttachDetach(t *testing.T) {
	b := NewMemoryBackend()

	first := b.Attach(&recordingSender{})
	second := b.Attach(&recordingSender{})
	assert.NotEqual(t, first, second)

	b.Detach(first)

	// A detached connection cannot bind an identity.
	assert.False(t, b.Connect(first, "ghost"))
	assert.True(t, b.Connect(second, "alive"))
}

func TestMemoryBackendEnsureTopicExists(t *testing.T) {
	b := NewMemoryBackend()

	assert.True(t, b.EnsureTopicExists("rooms/lobby"))
	assert.True(t, b.TopicDeclared("rooms/lobby"))

	// Declaring twice is idempotent.
	assert.True(t, b.EnsureTopicExists("rooms/lobby"))

	// Leading separator normalizes to the same topic.
	assert.True(t, b.EnsureTopicExists("/rooms/other"))
	assert.True(t, b.TopicDeclared("rooms/other"))

	assert.False(t, b.EnsureTopicExists(""))
	assert.False(t, b.EnsureTopicExists("bad\x00topic"))
}

func TestMemoryBackendConnect(t *testing.T) {
	b := NewMemoryBackend()
	id := b.Attach(&recordingSender{})

	assert.True(t, b.Connect(id, "client-1"))

	identity, ok := b.Identity(id)
	require.True(t, ok)
	assert.Equal(t, "client-1", identity)

	// A second CONNECT on the same connection is refused.
	assert.False(t, b.Connect(id, "client-2"))

	// Unknown connection ids are refused.
	assert.False(t, b.Connect(ConnID(999), "nobody"))
}

func TestMemoryBackendSubscribe(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("rooms/lobby")

	id := b.Attach(&recordingSender{})

	// Subscribing before CONNECT is refused.
	assert.False(t, b.Subscribe(id, "rooms/lobby"))

	require.True(t, b.Connect(id, "client-1"))
	assert.True(t, b.Subscribe(id, "rooms/lobby"))
	assert.Equal(t, 1, b.RemoteSubscriberCount("rooms/lobby"))

	// Subscribing twice keeps a single membership.
	assert.True(t, b.Subscribe(id, "rooms/lobby"))
	assert.Equal(t, 1, b.RemoteSubscriberCount("rooms/lobby"))

	// Undeclared topics are refused.
	assert.False(t, b.Subscribe(id, "rooms/undeclared"))
}

func TestMemoryBackendUnsubscribe(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("rooms/lobby")

	id := b.Attach(&recordingSender{})
	require.True(t, b.Connect(id, "client-1"))
	require.True(t, b.Subscribe(id, "rooms/lobby"))

	assert.True(t, b.Unsubscribe(id, "rooms/lobby"))
	assert.Equal(t, 0, b.RemoteSubscriberCount("rooms/lobby"))

	// The topic declaration outlives the empty subscriber set.
	assert.True(t, b.TopicDeclared("rooms/lobby"))

	// Unsubscribing again reports the missing membership.
	assert.False(t, b.Unsubscribe(id, "rooms/lobby"))
}

func TestMemoryBackendDisconnectSweepsSubscriptions(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("a")
	b.EnsureTopicExists("b")

	id := b.Attach(&recordingSender{})
	require.True(t, b.Connect(id, "client-1"))
	require.True(t, b.Subscribe(id, "a"))
	require.True(t, b.Subscribe(id, "b"))

	assert.True(t, b.Disconnect(id))
	assert.Equal(t, 0, b.RemoteSubscriberCount("a"))
	assert.Equal(t, 0, b.RemoteSubscriberCount("b"))

	_, ok := b.Identity(id)
	assert.False(t, ok)

	// Disconnect of an already disconnected connection still succeeds.
	assert.True(t, b.Disconnect(id))

	// The connection may CONNECT again with a fresh identity.
	assert.True(t, b.Connect(id, "client-1-reborn"))
}

func TestMemoryBackendPublishFanOut(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("rooms/lobby")

	subscriber := &recordingSender{}
	bystander := &recordingSender{}

	subID := b.Attach(subscriber)
	byID := b.Attach(bystander)
	require.True(t, b.Connect(subID, "sub"))
	require.True(t, b.Connect(byID, "bystander"))
	require.True(t, b.Subscribe(subID, "rooms/lobby"))

	packet := []byte{0x30, 0x04, 0x00, 0x01, 't', 'x'}
	require.NoError(t, b.Publish(context.Background(), "rooms/lobby", packet))

	require.Len(t, subscriber.sent(), 1)
	assert.Equal(t, packet, subscriber.sent()[0])
	assert.Empty(t, bystander.sent())
}

func TestMemoryBackendPublishNoSubscribers(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("rooms/empty")

	assert.NoError(t, b.Publish(context.Background(), "rooms/empty", []byte{0x30, 0x00}))
}

func TestMemoryBackendPublishFailedSender(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("t")

	healthy := &recordingSender{}
	broken := &recordingSender{err: errors.New("write on closed transport")}

	healthyID := b.Attach(healthy)
	brokenID := b.Attach(broken)
	require.True(t, b.Connect(healthyID, "healthy"))
	require.True(t, b.Connect(brokenID, "broken"))
	require.True(t, b.Subscribe(healthyID, "t"))
	require.True(t, b.Subscribe(brokenID, "t"))

	err := b.Publish(context.Background(), "t", []byte{0x30, 0x00})
	assert.Error(t, err)

	// The healthy subscriber still got the packet.
	assert.Len(t, healthy.sent(), 1)
}

func TestMemoryBackendLocalSubscribers(t *testing.T) {
	b := NewMemoryBackend()

	var (
		mu    sync.Mutex
		calls []string
	)

	cb := func(_ context.Context, topic string, message []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, topic+":"+string(message))
		return nil
	}

	b.RegisterLocalSubscriber("events", cb)
	// Same function registered twice stays a single subscriber.
	b.RegisterLocalSubscriber("events", cb)

	require.NoError(t, b.NotifyLocalSubscribers(context.Background(), "events", []byte("ping")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"events:ping"}, calls)
}

func TestMemoryBackendLocalSubscriberError(t *testing.T) {
	b := NewMemoryBackend()

	wantErr := errors.New("consumer rejected message")
	b.RegisterLocalSubscriber("events", func(context.Context, string, []byte) error {
		return wantErr
	})

	err := b.NotifyLocalSubscribers(context.Background(), "events", []byte("x"))
	assert.ErrorIs(t, err, wantErr)
}

func TestMemoryBackendConcurrentSubscribe(t *testing.T) {
	b := NewMemoryBackend()
	b.EnsureTopicExists("t")

	const workers = 16

	ids := make([]ConnID, workers)
	for i := range ids {
		ids[i] = b.Attach(&recordingSender{})
		require.True(t, b.Connect(ids[i], "c"))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id ConnID) {
			defer wg.Done()
			b.Subscribe(id, "t")
		}(id)
	}
	wg.Wait()

	assert.Equal(t, workers, b.RemoteSubscriberCount("t"))
}
