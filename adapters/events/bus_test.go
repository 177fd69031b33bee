package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/portal/core"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDecodesEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewMemoryBus(watermill.NopLogger{})
	defer bus.Close()

	events, err := Watch(ctx, bus, "")
	require.NoError(t, err)

	// garbage on the topic is skipped
	require.NoError(t, bus.Publish(DefaultTopic, message.NewMessage(watermill.NewUUID(), []byte("{"))))

	publisher := NewWatermillPublisher(bus, "")
	require.NoError(t, publisher.Publish(ctx, core.Event{Kind: core.EventLogin}))
	require.NoError(t, publisher.Publish(ctx, core.Event{Kind: core.EventLogout}))

	var kinds []core.EventKind
	for len(kinds) < 2 {
		select {
		case event := <-events:
			kinds = append(kinds, event.Kind)
		case <-ctx.Done():
			t.Fatal("events were not delivered")
		}
	}
	assert.ElementsMatch(t, []core.EventKind{core.EventLogin, core.EventLogout}, kinds)
}

func TestWatchStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewMemoryBus(watermill.NopLogger{})
	defer bus.Close()

	events, err := Watch(ctx, bus, DefaultTopic)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRedisStreamBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus, err := NewRedisStreamBus(client, "", watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, NewWatermillPublisher(bus, "").Publish(context.Background(), core.Event{Kind: core.EventRevoked}))
	assert.NoError(t, bus.Close())

	assert.True(t, mr.Exists(DefaultTopic))
}

func TestLogrusAdapter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	adapter := NewLogrusAdapter(logger).With(watermill.LogFields{"topic": DefaultTopic})
	adapter.Info("subscribed", nil)
	adapter.Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 2})

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, DefaultTopic, entries[0].Data["topic"])
	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, 2, entries[1].Data["attempt"])
	assert.EqualError(t, entries[1].Data[logrus.ErrorKey].(error), "boom")
}
