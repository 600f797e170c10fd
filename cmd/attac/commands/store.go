package commands

import (
	"context"
	"fmt"

	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/state"
)

// openStore selects the checkpoint backend. The postgres backend reads
// its connection settings from the standard PG* environment variables.
func openStore(ctx context.Context, backend, dbPath string) (state.Store, error) {
	switch backend {
	case "sqlite":
		return state.NewSQLiteStore(dbPath)
	case "postgres":
		return state.NewPostgresStore(ctx, state.PostgresConfig{})
	default:
		return nil, fmt.Errorf("unknown checkpoint store %q (want sqlite or postgres)", backend)
	}
}

// storeLabel names the checkpoint destination for user-facing output.
func storeLabel(backend, dbPath string) string {
	if backend == "sqlite" {
		return dbPath
	}
	return backend
}
