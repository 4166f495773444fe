package message_broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

func TestPublishWithoutSubscriber(t *testing.T) {
	b := NewChannelMessageBroker()
	defer b.Close()

	err := b.Publish(context.Background(), "companion.turns", "alice", []byte("{}"))
	assert.ErrorIs(t, err, domain.ErrNoSubscribers)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewChannelMessageBroker()
	defer b.Close()

	ch, err := b.Subscribe(ctx, "companion.turns", "alice")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "companion.turns", "alice", []byte("one")))
	assert.ErrorIs(t, b.Publish(ctx, "companion.turns", "bob", []byte("other")), domain.ErrNoSubscribers)

	msg := <-ch
	assert.Equal(t, "one", string(msg.Payload))
	assert.Equal(t, "alice", msg.RoutingKey)
	assert.Equal(t, 1, b.GetTopicCount())
}

func TestResubscribeClosesPreviousChannel(t *testing.T) {
	ctx := context.Background()
	b := NewChannelMessageBroker()
	defer b.Close()

	first, err := b.Subscribe(ctx, "t", "k")
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "t", "k")
	require.NoError(t, err)

	_, ok := <-first
	assert.False(t, ok)
}

func TestUnsubscribeAndClose(t *testing.T) {
	ctx := context.Background()
	b := NewChannelMessageBroker()

	ch, err := b.Subscribe(ctx, "t", "k")
	require.NoError(t, err)
	b.Unsubscribe("t", "k")
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.GetTopicCount())

	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(ctx, "t", "k", nil))
	_, err = b.Subscribe(ctx, "t", "k")
	assert.Error(t, err)
}
