// Package testutil provides shared test infrastructure: an ephemeral
// SQLite-backed storage.DB with migrations applied, and a quiet logger.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/signet-ai/signet/internal/storage"
	"github.com/signet-ai/signet/migrations"
)

// OpenDB creates a storage.DB backed by a SQLite file under t.TempDir() and
// applies all migrations. The database and its WAL side-files are cleaned
// up automatically when the test completes.
func OpenDB(t *testing.T) *storage.DB {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")

	db, err := storage.Open(context.Background(), path, TestLogger())
	if err != nil {
		t.Fatalf("testutil: open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		t.Fatalf("testutil: run migrations: %v", err)
	}
	return db
}

// MustOpenDB is OpenDB's non-testing.T variant for use from TestMain or
// benchmark setup where a *testing.T is unavailable.
func MustOpenDB(dir string) (*storage.DB, func(), error) {
	path := filepath.Join(dir, "memories.db")
	db, err := storage.Open(context.Background(), path, TestLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("testutil: open db: %w", err)
	}
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

// TestLogger returns a logger configured for test output (warnings only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
