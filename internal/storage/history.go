package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

func appendHistory(ctx context.Context, tx *sql.Tx, memoryID uuid.UUID, event model.HistoryEvent, oldContent, newContent, reason *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memory_history (id, memory_id, event, old_content, new_content, reason, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		uuid.New().String(), memoryID.String(), string(event), oldContent, newContent, reason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: append history: %w", err)
	}
	return nil
}

// HistoryOf returns a memory's append-only audit trail, oldest first.
func (db *DB) HistoryOf(ctx context.Context, memoryID uuid.UUID) ([]model.MemoryHistory, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, memory_id, event, old_content, new_content, changed_by, reason,
			session_id, request_id, actor_type, created_at
		FROM memory_history WHERE memory_id = ? ORDER BY created_at ASC`, memoryID.String())
	if err != nil {
		return nil, fmt.Errorf("storage: history of: %w", err)
	}
	defer rows.Close()

	var out []model.MemoryHistory
	for rows.Next() {
		var (
			h                                                              model.MemoryHistory
			idStr, memIDStr, event                                         string
			oldContent, newContent, changedBy, reason, sessionID, reqID, actorType sql.NullString
			createdAt                                                      string
		)
		if err := rows.Scan(&idStr, &memIDStr, &event, &oldContent, &newContent, &changedBy,
			&reason, &sessionID, &reqID, &actorType, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan history: %w", err)
		}
		h.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		h.MemoryID, err = uuid.Parse(memIDStr)
		if err != nil {
			return nil, err
		}
		h.Event = model.HistoryEvent(event)
		h.OldContent = nullableString(oldContent)
		h.NewContent = nullableString(newContent)
		h.ChangedBy = nullableString(changedBy)
		h.Reason = nullableString(reason)
		h.SessionID = nullableString(sessionID)
		h.RequestID = nullableString(reqID)
		h.ActorType = nullableString(actorType)
		h.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
