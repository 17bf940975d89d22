package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_AppliesInOrderAndSkipsOnRerun(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_things.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)},
	}

	require.NoError(t, db.RunMigrations(context.Background(), fsys))
	require.NoError(t, db.RunMigrations(context.Background(), fsys))

	cols, err := db.tableColumns(context.Background(), "things")
	require.NoError(t, err)
	require.True(t, cols["id"])
}

func TestRunMigrations_ChecksumMismatchErrors(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_things.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)},
	}
	require.NoError(t, db.RunMigrations(context.Background(), fsys))

	fsys["0001_things.sql"].Data = []byte(`CREATE TABLE things (id TEXT PRIMARY KEY, extra TEXT);`)
	err := db.RunMigrations(context.Background(), fsys)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestRunMigrations_RepairsStampedMigrationWithMissingColumn(t *testing.T) {
	db := openTestDB(t)

	base := []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)
	addColumn := []byte(`ALTER TABLE things ADD COLUMN label TEXT;`)

	require.NoError(t, db.RunMigrations(context.Background(), fstest.MapFS{
		"0001_things.sql": &fstest.MapFile{Data: base},
	}))

	// Simulate a bogus stamp: record 0002 as applied without ever running
	// its ALTER TABLE, as if a backup had been restored between the two.
	sum := checksum(addColumn)
	_, err := db.writer.ExecContext(context.Background(),
		`INSERT INTO schema_migrations (version, checksum, applied_at, duration_ms) VALUES (?, ?, ?, 0)`,
		"0002_label.sql", sum, time.Now().UTC().Format(time.RFC3339Nano),
	)
	require.NoError(t, err)

	cols, err := db.tableColumns(context.Background(), "things")
	require.NoError(t, err)
	require.False(t, cols["label"], "precondition: column must not exist yet")

	require.NoError(t, db.RunMigrations(context.Background(), fstest.MapFS{
		"0001_things.sql": &fstest.MapFile{Data: base},
		"0002_label.sql":  &fstest.MapFile{Data: addColumn},
	}))

	cols, err = db.tableColumns(context.Background(), "things")
	require.NoError(t, err)
	require.True(t, cols["label"], "repair path should have replayed the migration and added the column")
}

func TestExpectedColumns_ParsesAddColumnTargets(t *testing.T) {
	got := expectedColumns(`
		ALTER TABLE memories ADD COLUMN pinned_reason TEXT;
		ALTER TABLE "peers" ADD COLUMN "last_error" TEXT;
	`)
	require.Equal(t, []string{"pinned_reason"}, got["memories"])
	require.Equal(t, []string{"last_error"}, got["peers"])
}

func TestExpectedColumns_EmptyForCreateTableOnly(t *testing.T) {
	got := expectedColumns(`CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY);`)
	require.Nil(t, got)
}
