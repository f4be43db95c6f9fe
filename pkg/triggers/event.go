package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/weavebit/loom/pkg/models"
)

// EventSource consumes external events from Redis lists and fires the event
// triggers bound to those queues. One consumer goroutine per queue; messages
// are JSON objects used as trigger payload, or wrapped as {"message": ...}
// when they do not parse.
type EventSource struct {
	manager *Manager
	client  redis.UniversalClient
	logger  *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEventSource connects to Redis and returns an event source.
func NewEventSource(ctx context.Context, manager *Manager, logger *slog.Logger, opts *redis.Options) (*EventSource, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &EventSource{
		manager: manager,
		client:  client,
		logger:  logger.With("module", "event_source"),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins consuming for every enabled event trigger.
func (s *EventSource) Start(ctx context.Context) error {
	triggers, err := s.manager.persistence.TriggerRepository().All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	started := 0

	for _, trigger := range triggers {
		if trigger.Type != models.TriggerTypeEvent || !trigger.Enabled {
			continue
		}

		s.wg.Add(1)

		go s.consume(ctx, trigger.ID, trigger.EventQueue())

		started++
	}

	s.logger.InfoContext(ctx, "Event source started", "consumers", started)

	return nil
}

func (s *EventSource) consume(ctx context.Context, triggerID, queue string) {
	defer s.wg.Done()

	logger := s.logger.With("trigger_id", triggerID, "queue", queue)
	logger.InfoContext(ctx, "Starting event consumer")

	for {
		select {
		case <-s.stopCh:
			logger.InfoContext(ctx, "Event consumer stopped")

			return
		case <-ctx.Done():
			return
		default:
			if err := s.processMessage(ctx, triggerID, queue); err != nil {
				logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *EventSource) processMessage(ctx context.Context, triggerID, queue string) error {
	result, err := s.client.BLPop(ctx, time.Second, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		payload = map[string]any{"message": message}
	}

	if _, err := s.manager.Fire(ctx, triggerID, payload); err != nil {
		return fmt.Errorf("failed to fire trigger %s: %w", triggerID, err)
	}

	return nil
}

// Stop halts every consumer and closes the Redis client.
func (s *EventSource) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	if err := s.client.Close(); err != nil {
		s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
