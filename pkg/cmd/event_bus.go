package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/weavebit/loom/pkg/channels/gochannel"
	"github.com/weavebit/loom/pkg/channels/kafka"
	"github.com/weavebit/loom/pkg/eventbus"
)

// NewEventBus builds an event bus for the given provider. Kafka needs a
// broker list; the in-process channel is meant for single-binary setups.
func NewEventBus(provider, serviceName, brokerList string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, brokerList)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
