// Package eventbus publishes and consumes workflow lifecycle events over
// watermill. The transport is pluggable: pkg/channels/gochannel for in-proc
// use and tests, pkg/channels/kafka for deployments.
package eventbus

import (
	"context"

	"github.com/weavebit/loom/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
