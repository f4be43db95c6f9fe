// Package postgresql provides PostgreSQL persistence for workflows, triggers
// and execution history.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	triggerRepo   *TriggerRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects, migrates and returns a PostgreSQL persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, db, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            db,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{db: db},
		triggerRepo:   &TriggerRepository{db: db},
		executionRepo: &ExecutionRepository{db: db},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
