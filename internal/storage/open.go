package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"

	"github.com/coral-mesh/vmprof/internal/constants"
	"github.com/coral-mesh/vmprof/internal/retry"
)

// Open opens the DuckDB database at path, creating its directory. An empty
// path or ":memory:" opens an in-memory database. While another process holds
// the file lock the open is retried with backoff.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var connector *duckdbDriver.Connector
	cfg := retry.Config{
		Attempts:       constants.DatabaseOpenAttempts,
		InitialBackoff: constants.DatabaseOpenBackoff,
	}
	err := retry.Do(ctx, cfg, func() error {
		var err error
		connector, err = duckdbDriver.NewConnector(path, nil)
		return err
	}, isLockError)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	return sql.OpenDB(connector), nil
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "Could not set lock on file")
}
