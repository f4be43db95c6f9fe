// Package notification provides the send_notification action handler backing
// NOTIFICATION nodes. Notifications are published to a Redis channel where
// delivery workers pick them up.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/template"
)

const defaultChannel = "loom.notifications"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "send_notification"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "send_notification",
		Name:        "Send Notification",
		Description: "Publishes a notification message to a Redis channel for delivery workers.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"redis_url": {
					Type:        "string",
					Description: "Redis connection URL, e.g. redis://localhost:6379/0.",
				},
				"channel": {
					Type:        "string",
					Description: "Redis channel to publish to.",
					Default:     defaultChannel,
				},
				"subject": {
					Type:        "string",
					Description: "Notification subject template.",
				},
				"message": {
					Type:        "string",
					Description: "Notification body template rendered against the execution context.",
				},
				"recipients": {
					Type:        "array",
					Description: "Recipient identifiers for the delivery worker.",
				},
			},
			Required: []string{"redis_url", "message"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	return NewAction(config)
}

// Action publishes one notification per execution.
type Action struct {
	redisURL   string
	channel    string
	subject    string
	message    string
	recipients []string
}

func NewAction(config map[string]any) (*Action, error) {
	redisURL, ok := config["redis_url"].(string)
	if !ok || redisURL == "" {
		return nil, errors.New("missing required field 'redis_url'")
	}

	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	action := &Action{
		redisURL: redisURL,
		channel:  defaultChannel,
		message:  message,
	}

	if channel, ok := config["channel"].(string); ok && channel != "" {
		action.channel = channel
	}

	if subject, ok := config["subject"].(string); ok {
		action.subject = subject
	}

	if recipients, ok := config["recipients"].([]any); ok {
		for _, recipient := range recipients {
			if s, ok := recipient.(string); ok {
				action.recipients = append(action.recipients, s)
			}
		}
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_notification", "channel", a.channel)

	message, err := template.RenderString(a.message, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render message template: %w", err)
	}

	subject := a.subject
	if subject != "" {
		subject, err = template.RenderString(a.subject, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render subject template: %w", err)
		}
	}

	opts, err := redis.ParseURL(a.redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	payload, err := json.Marshal(map[string]any{
		"execution_id": ectx.ExecutionID,
		"workflow_id":  ectx.WorkflowID,
		"subject":      subject,
		"message":      message,
		"recipients":   a.recipients,
		"sent_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := client.Publish(ctx, a.channel, payload).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish notification: %w", err)
	}

	logger.InfoContext(ctx, "Notification published", "recipients", len(a.recipients))

	return map[string]any{
		"channel":    a.channel,
		"subject":    subject,
		"message":    message,
		"recipients": a.recipients,
	}, nil
}
