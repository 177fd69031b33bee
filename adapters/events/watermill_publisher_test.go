package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/portal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisherDeliversEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(ctx, "test.session")
	require.NoError(t, err)

	publisher := NewWatermillPublisher(pubSub, "test.session")
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.Publish(ctx, core.Event{Kind: core.EventExpired, Subject: "alice", At: at}))

	select {
	case msg := <-messages:
		msg.Ack()
		event, err := Decode(msg)
		require.NoError(t, err)
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, msg.UUID, event.ID)
		assert.Equal(t, core.EventExpired, event.Kind)
		assert.Equal(t, "alice", event.Subject)
		assert.True(t, at.Equal(event.At))
		assert.Equal(t, "expired", msg.Metadata.Get("kind"))
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}

func TestNewWatermillPublisherDefaultsTopic(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	p := NewWatermillPublisher(pubSub, "").(*WatermillPublisher)
	assert.Equal(t, DefaultTopic, p.topic)
}
