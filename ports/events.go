package ports

import (
	"context"

	"github.com/layer-3/portal/core"
)

// EventPublisher publishes session lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}
