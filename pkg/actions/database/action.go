// Package database provides the SQL query action handler backing DATABASE
// nodes. It talks to PostgreSQL through database/sql.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/template"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "database_query"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "database_query",
		Name:        "Database Query",
		Description: "Runs a SQL statement against a PostgreSQL database and returns the result rows.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"dsn": {
					Type:        "string",
					Description: "PostgreSQL connection string. Supports templating.",
				},
				"query": {
					Type:        "string",
					Description: "SQL statement with $1..$n placeholders.",
				},
				"args": {
					Type:        "array",
					Description: "Positional arguments. String values support templating.",
				},
			},
			Required: []string{"dsn", "query"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	return NewAction(config)
}

// Action runs one SQL statement per execution. The connection is opened and
// closed per run; pooling across visits is not worth holding credentials in
// the registry for.
type Action struct {
	dsn   string
	query string
	args  []any
}

func NewAction(config map[string]any) (*Action, error) {
	dsn, ok := config["dsn"].(string)
	if !ok || dsn == "" {
		return nil, errors.New("missing required field 'dsn'")
	}

	query, ok := config["query"].(string)
	if !ok || query == "" {
		return nil, errors.New("missing required field 'query'")
	}

	action := &Action{dsn: dsn, query: query}

	if args, ok := config["args"].([]any); ok {
		action.args = args
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "database_query")

	dsn, err := template.RenderString(a.dsn, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render dsn template: %w", err)
	}

	args := make([]any, len(a.args))

	for i, arg := range a.args {
		if s, ok := arg.(string); ok {
			rendered, err := template.RenderString(s, ectx)
			if err != nil {
				return nil, fmt.Errorf("failed to render argument %d: %w", i+1, err)
			}

			args[i] = rendered

			continue
		}

		args[i] = arg
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	defer func() { _ = db.Close() }()

	logger.InfoContext(ctx, "Executing database query")

	rows, err := db.QueryContext(ctx, a.query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)

				continue
			}

			row[column] = values[i]
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return map[string]any{
		"rows":      results,
		"row_count": len(results),
	}, nil
}
