// Package registry maps action identifiers to handler factories and enforces
// each handler's declared configuration contract.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Action is the contract every node handler implements. Handlers must be
// idempotent or safely retryable: the engine guarantees at-least-once
// invocation, not exactly-once.
type Action interface {
	Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error)
}

// ActionFactory creates handler instances from a node's configuration blob
// and describes the handler to operators.
type ActionFactory interface {
	ID() string
	Create(config map[string]any) (Action, error)
	Metadata() *models.RegisteredAction
}

// Registry holds the registered action factories for one engine instance.
// Engines are constructed with their registry injected so tests can run
// multiple isolated engines in-process.
type Registry struct {
	logger    *slog.Logger
	factories map[string]ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]ActionFactory),
	}
}

// Register adds an action factory, replacing any previous registration for
// the same identifier.
func (r *Registry) Register(factory ActionFactory) {
	r.factories[factory.ID()] = factory
}

// CreateAction validates config against the factory's schema and instantiates
// the handler.
func (r *Registry) CreateAction(actionID string, config map[string]any) (Action, error) {
	factory, ok := r.factories[actionID]
	if !ok {
		return nil, fmt.Errorf("action %q not registered", actionID)
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// IsRegistered reports whether an action identifier has a factory.
func (r *Registry) IsRegistered(actionID string) bool {
	_, ok := r.factories[actionID]

	return ok
}

// Actions returns metadata for every registered action, sorted by id.
func (r *Registry) Actions() []*models.RegisteredAction {
	out := make([]*models.RegisteredAction, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory.Metadata())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (r *Registry) validateConfig(factory ActionFactory, config map[string]any) error {
	meta := factory.Metadata()
	if meta == nil || meta.Schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(meta.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for action %q: %w", factory.ID(), err)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for action %q: %w", factory.ID(), err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid config for action %q: %s", factory.ID(), strings.Join(details, "; "))
	}

	return nil
}
