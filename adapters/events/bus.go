package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/portal/core"
	"github.com/redis/go-redis/v9"
)

// Bus is a publisher and subscriber over the same transport
type Bus interface {
	message.Publisher
	message.Subscriber
}

// NewMemoryBus returns an in-process bus; events never leave the process
func NewMemoryBus(logger watermill.LoggerAdapter) Bus {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)
}

type redisBus struct {
	*redisstream.Publisher
	*redisstream.Subscriber
}

func (b *redisBus) Close() error {
	perr := b.Publisher.Close()
	serr := b.Subscriber.Close()
	if perr != nil {
		return perr
	}
	return serr
}

// NewRedisStreamBus returns a bus over redis streams. Without a consumer
// group every subscriber receives every event.
func NewRedisStreamBus(client redis.UniversalClient, consumerGroup string, logger watermill.LoggerAdapter) (Bus, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create redis stream subscriber: %w", err)
	}

	return &redisBus{Publisher: publisher, Subscriber: subscriber}, nil
}

// Watch decodes session events from topic until ctx is done. Undecodable
// messages are acked and skipped.
func Watch(ctx context.Context, sub message.Subscriber, topic string) (<-chan core.Event, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan core.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			event, err := Decode(msg)
			msg.Ack()
			if err != nil {
				continue
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
