package mqttws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomEvent struct {
	Room string `json:"room"`
}

type userEvent struct {
	User string `json:"user"`
}

func TestMultiplexerBindPublisher(t *testing.T) {
	m := NewMultiplexer()

	require.NoError(t, m.BindPublisher("rooms/events", roomEvent{}))

	topic, err := m.TopicFor(roomEvent{Room: "lobby"})
	require.NoError(t, err)
	assert.Equal(t, "rooms/events", topic)
}

func TestMultiplexerBindPublisherSameTopicTwice(t *testing.T) {
	m := NewMultiplexer()

	require.NoError(t, m.BindPublisher("rooms/events", roomEvent{}))
	assert.NoError(t, m.BindPublisher("rooms/events", roomEvent{}))
}

func TestMultiplexerBindPublisherConflict(t *testing.T) {
	m := NewMultiplexer()

	require.NoError(t, m.BindPublisher("rooms/events", roomEvent{}))

	err := m.BindPublisher("other/topic", roomEvent{})
	assert.ErrorIs(t, err, ErrTypeAlreadyBound)

	// The original binding survives the failed rebind.
	topic, err := m.TopicFor(roomEvent{})
	require.NoError(t, err)
	assert.Equal(t, "rooms/events", topic)
}

func TestMultiplexerTopicForUnboundType(t *testing.T) {
	m := NewMultiplexer()

	_, err := m.TopicFor(userEvent{})
	assert.ErrorIs(t, err, ErrTypeNotBound)
}

func TestMultiplexerBindPublisherNilPrototype(t *testing.T) {
	m := NewMultiplexer()
	assert.Error(t, m.BindPublisher("t", nil))
}

func TestMultiplexerTopics(t *testing.T) {
	m := NewMultiplexer()

	require.NoError(t, m.BindPublisher("rooms/events", roomEvent{}))
	require.NoError(t, m.BindPublisher("users/events", userEvent{}))
	m.BindSubscriber("rooms/events", func(context.Context, string, []byte) error { return nil })
	m.BindSubscriber("audit", func(context.Context, string, []byte) error { return nil })

	assert.ElementsMatch(t, []string{"rooms/events", "users/events", "audit"}, m.Topics())
}

func TestMultiplexerBindSubscriberManyToMany(t *testing.T) {
	m := NewMultiplexer()

	cb := func(context.Context, string, []byte) error { return nil }

	// One callback under two topics, plus a second callback on the first.
	m.BindSubscriber("a", cb)
	m.BindSubscriber("b", cb)
	m.BindSubscriber("a", func(context.Context, string, []byte) error { return nil })

	assert.ElementsMatch(t, []string{"a", "b"}, m.Topics())
}
