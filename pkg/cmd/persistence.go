package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/persistence/file"
	"github.com/weavebit/loom/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence backend from a database URL. Postgres
// URLs get the PostgreSQL backend; everything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return persist
	default:
		return file.NewPersistence(databaseURL)
	}
}
