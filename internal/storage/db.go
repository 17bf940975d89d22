// Package storage is the SQLite-backed repository for memories, embeddings,
// entities/relations, decisions, contradictions, history, and background
// jobs. It owns the migration runner and is the sole writer: all mutations
// go through the methods here, while readers may open additional read-only
// connections.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "modernc.org/sqlite"
)

// DB wraps two SQLite handles against the same file: a single-connection
// writer (SQLite allows only one writer at a time regardless of WAL mode)
// and an unbounded read-only pool for concurrent reads.
type DB struct {
	path   string
	writer *sql.DB
	reader *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) a SQLite database at path in WAL mode
// with foreign keys enabled and a busy timeout, and returns a DB wrapping
// both the writer and reader handles. It does not run migrations; call
// RunMigrations separately.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	writerDSN := dsn(path, false)
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("storage: ping writer: %w", err)
	}

	readerDSN := dsn(path, true)
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("storage: open reader: %w", err)
	}

	if err := reader.PingContext(ctx); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("storage: ping reader: %w", err)
	}

	return &DB{path: path, writer: writer, reader: reader, logger: logger}, nil
}

func dsn(path string, readOnly bool) string {
	q := url.Values{}
	q.Set("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	if readOnly {
		q.Set("mode", "ro")
	}
	return "file:" + path + "?" + q.Encode()
}

// Writer returns the single-connection writer handle. Use within a
// transaction for any mutation.
func (db *DB) Writer() *sql.DB { return db.writer }

// Reader returns the read-only pool handle for queries.
func (db *DB) Reader() *sql.DB { return db.reader }

// Ping checks connectivity to both handles.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return err
	}
	return db.reader.PingContext(ctx)
}

// Close shuts down both handles.
func (db *DB) Close() error {
	werr := db.writer.Close()
	rerr := db.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
