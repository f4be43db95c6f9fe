// Package main provides the Loom trigger runner, which fires schedule and
// event triggers without exposing the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	loomcmd "github.com/weavebit/loom/pkg/cmd"
	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/log"
	"github.com/weavebit/loom/pkg/triggers"
)

func main() {
	command := &cli.Command{
		Name:                  "loom-trigger",
		Usage:                 "Run schedule and event trigger listeners",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL or file root for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			fireCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start schedule and event trigger listeners",
		Flags: []cli.Flag{
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
				Name:    "redis-addr",
				Usage:   "Redis address for event trigger queues (empty disables them)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("trigger")
			logger.InfoContext(ctx, "Initializing Loom trigger runner")

			registry := loomcmd.NewRegistry(logger)

			persistence := loomcmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := loomcmd.NewEventBus(command.String("event-bus"), "loom-trigger", command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			scheduler := engine.NewScheduler(persistence, registry, eventBus, logger)
			defer scheduler.Stop()

			manager := triggers.NewManager(persistence, scheduler, logger)

			runner := triggers.NewScheduleRunner(manager, logger)
			if err := runner.Start(ctx); err != nil {
				return err
			}
			defer runner.Stop()

			if addr := command.String("redis-addr"); addr != "" {
				source, err := triggers.NewEventSource(ctx, manager, logger, &redis.Options{Addr: addr})
				if err != nil {
					return err
				}

				if err := source.Start(ctx); err != nil {
					return err
				}

				defer func() {
					if err := source.Stop(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to stop event source", "error", err)
					}
				}()
			}

			logger.InfoContext(ctx, "Trigger runner started")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down trigger runner")

			return nil
		},
	}
}

func fireCommand() *cli.Command {
	return &cli.Command{
		Name:    "fire",
		Aliases: []string{"f"},
		Usage:   "Fire a trigger once with an optional JSON payload",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "trigger-id",
				Aliases:  []string{"id"},
				Usage:    "Trigger to fire",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "JSON payload passed as trigger data",
				Value: "{}",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("trigger")

			var payload map[string]any
			if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}

			registry := loomcmd.NewRegistry(logger)

			persistence := loomcmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			scheduler := engine.NewScheduler(persistence, registry, nil, logger)
			defer scheduler.Stop()

			manager := triggers.NewManager(persistence, scheduler, logger)

			execution, err := manager.Fire(ctx, command.String("trigger-id"), payload)
			if err != nil {
				return err
			}

			// Let the started run finish before the deferred Stop
			// cancels it.
			for scheduler.Running() > 0 {
				time.Sleep(100 * time.Millisecond)
			}

			logger.InfoContext(ctx, "Trigger fired",
				"trigger_id", command.String("trigger-id"),
				"execution_id", execution.ID)

			return nil
		},
	}
}
