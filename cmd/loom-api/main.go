package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/weavebit/loom/pkg/cmd"
	"github.com/weavebit/loom/pkg/log"
	"github.com/weavebit/loom/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "loom-api",
		Usage:                 "Create, manage and execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL or file root for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Loom API")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "loom-api"); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			registry := cmd.NewRegistry(logger)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "loom-api", command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
			)

			if err := api.Start(ctx, command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
