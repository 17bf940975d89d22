package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PendingEmbedding is a queued request to compute and store a vector for a
// memory that was written without one.
type PendingEmbedding struct {
	ID        uuid.UUID
	MemoryID  uuid.UUID
	Content   string
	Attempts  int
	LastError *string
	CreatedAt time.Time
}

// EnqueueEmbedding queues memoryID for async embedding. Called by
// InsertMemory whenever the caller didn't supply a vector up front.
func (db *DB) EnqueueEmbedding(ctx context.Context, tx *sql.Tx, memoryID uuid.UUID, content string) error {
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `INSERT INTO pending_embeddings (id, memory_id, content, attempts, created_at) VALUES (?,?,?,0,?)`
	args := []any{id.String(), memoryID.String(), content, now}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = db.writer.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("storage: enqueue embedding: %w", err)
	}
	return nil
}

// ClaimPendingEmbeddings fetches up to limit queued jobs, oldest first. The
// caller embeds and stores the vector, then calls AckPendingEmbedding or
// FailPendingEmbedding.
func (db *DB) ClaimPendingEmbeddings(ctx context.Context, limit int) ([]PendingEmbedding, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, memory_id, content, attempts, last_error, created_at
		FROM pending_embeddings ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: claim pending embeddings: %w", err)
	}
	defer rows.Close()

	var out []PendingEmbedding
	for rows.Next() {
		var (
			p                  PendingEmbedding
			idStr, memIDStr    string
			lastError          sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&idStr, &memIDStr, &p.Content, &p.Attempts, &lastError, &createdAt); err != nil {
			return nil, err
		}
		p.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		p.MemoryID, err = uuid.Parse(memIDStr)
		if err != nil {
			return nil, err
		}
		p.LastError = nullableString(lastError)
		p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AckPendingEmbedding removes a job once its vector has been stored.
func (db *DB) AckPendingEmbedding(ctx context.Context, id uuid.UUID) error {
	_, err := db.writer.ExecContext(ctx, `DELETE FROM pending_embeddings WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("storage: ack pending embedding: %w", err)
	}
	return nil
}

// FailPendingEmbedding records a failed attempt. Callers typically stop
// retrying a job once Attempts passes some caller-chosen ceiling.
func (db *DB) FailPendingEmbedding(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := db.writer.ExecContext(ctx,
		`UPDATE pending_embeddings SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		errMsg, id.String())
	if err != nil {
		return fmt.Errorf("storage: fail pending embedding: %w", err)
	}
	return nil
}

// MarkMerkleDirty flags that the memory set has changed since the last
// computed root. It is safe to call from any mutation path; the row is a
// single fixed-id flag, not a queue.
func (db *DB) MarkMerkleDirty(ctx context.Context, tx *sql.Tx) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `INSERT INTO pending_merkle (id, dirty, marked_at) VALUES (1, 1, ?)
		ON CONFLICT(id) DO UPDATE SET dirty = 1, marked_at = excluded.marked_at`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, now)
	} else {
		_, err = db.writer.ExecContext(ctx, query, now)
	}
	if err != nil {
		return fmt.Errorf("storage: mark merkle dirty: %w", err)
	}
	return nil
}

// MerkleDirty reports whether the memory set has changed since the last
// computed root.
func (db *DB) MerkleDirty(ctx context.Context) (bool, error) {
	var dirty sql.NullInt64
	err := db.reader.QueryRowContext(ctx, `SELECT dirty FROM pending_merkle WHERE id = 1`).Scan(&dirty)
	if err == sql.ErrNoRows {
		return true, nil // never computed: treat as dirty
	}
	if err != nil {
		return false, fmt.Errorf("storage: merkle dirty: %w", err)
	}
	return dirty.Valid && dirty.Int64 != 0, nil
}

// ClearMerkleDirty resets the dirty flag after a root has been recomputed.
func (db *DB) ClearMerkleDirty(ctx context.Context) error {
	_, err := db.writer.ExecContext(ctx,
		`INSERT INTO pending_merkle (id, dirty, marked_at) VALUES (1, 0, NULL)
		ON CONFLICT(id) DO UPDATE SET dirty = 0`)
	if err != nil {
		return fmt.Errorf("storage: clear merkle dirty: %w", err)
	}
	return nil
}
