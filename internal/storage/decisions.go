package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// InsertDecision records structured decision metadata against a memory.
func (db *DB) InsertDecision(ctx context.Context, d model.Decision) (uuid.UUID, error) {
	id := uuid.New()
	reasoning, err := json.Marshal(d.Reasoning)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: marshal reasoning: %w", err)
	}
	alternatives, err := json.Marshal(d.Alternatives)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: marshal alternatives: %w", err)
	}

	_, err = db.writer.ExecContext(ctx, `
		INSERT INTO decisions (id, memory_id, conclusion, reasoning, alternatives, confidence,
			revisitable, outcome, outcome_at, reviewed_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		id.String(), d.MemoryID.String(), d.Conclusion, string(reasoning), string(alternatives),
		d.Confidence, boolToInt(d.Revisitable), d.Outcome, formatOptionalTime(d.OutcomeAt),
		formatOptionalTime(d.ReviewedAt), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: insert decision: %w", err)
	}
	return id, nil
}

// DecisionByMemory returns the decision record attached to a memory, if any.
func (db *DB) DecisionByMemory(ctx context.Context, memoryID uuid.UUID) (model.Decision, bool, error) {
	row := db.reader.QueryRowContext(ctx, `
		SELECT id, memory_id, conclusion, reasoning, alternatives, confidence, revisitable,
			outcome, outcome_at, reviewed_at, created_at
		FROM decisions WHERE memory_id = ?`, memoryID.String())
	return scanDecision(row)
}

func scanDecision(row *sql.Row) (model.Decision, bool, error) {
	var (
		d                              model.Decision
		idStr, memIDStr                string
		reasoning, alternatives        string
		revisitable                    int
		outcome, outcomeAt, reviewedAt sql.NullString
		createdAt                      string
	)
	err := row.Scan(&idStr, &memIDStr, &d.Conclusion, &reasoning, &alternatives, &d.Confidence,
		&revisitable, &outcome, &outcomeAt, &reviewedAt, &createdAt)
	if err == sql.ErrNoRows {
		return model.Decision{}, false, nil
	}
	if err != nil {
		return model.Decision{}, false, fmt.Errorf("storage: scan decision: %w", err)
	}

	d.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Decision{}, false, err
	}
	d.MemoryID, err = uuid.Parse(memIDStr)
	if err != nil {
		return model.Decision{}, false, err
	}
	if err := json.Unmarshal([]byte(reasoning), &d.Reasoning); err != nil {
		return model.Decision{}, false, err
	}
	if err := json.Unmarshal([]byte(alternatives), &d.Alternatives); err != nil {
		return model.Decision{}, false, err
	}
	d.Outcome = nullableString(outcome)
	d.Revisitable = revisitable != 0
	d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Decision{}, false, err
	}
	if outcomeAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, outcomeAt.String)
		if err != nil {
			return model.Decision{}, false, err
		}
		d.OutcomeAt = &t
	}
	if reviewedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, reviewedAt.String)
		if err != nil {
			return model.Decision{}, false, err
		}
		d.ReviewedAt = &t
	}
	return d, true, nil
}

// InsertContradiction records a detected contradiction between two memories.
func (db *DB) InsertContradiction(ctx context.Context, c model.Contradiction) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.writer.ExecContext(ctx, `
		INSERT INTO contradictions (id, new_memory_id, old_memory_id, resolution, reasoning, resolved_by, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		id.String(), c.NewMemoryID.String(), c.OldMemoryID.String(), string(c.Resolution),
		c.Reasoning, nullIfEmpty(string(c.ResolvedBy)), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: insert contradiction: %w", err)
	}
	return id, nil
}

// ResolveContradiction updates an existing contradiction's resolution.
func (db *DB) ResolveContradiction(ctx context.Context, id uuid.UUID, resolution model.ContradictionResolution, resolvedBy model.ResolvedBy) error {
	res, err := db.writer.ExecContext(ctx,
		`UPDATE contradictions SET resolution = ?, resolved_by = ? WHERE id = ?`,
		string(resolution), string(resolvedBy), id.String())
	if err != nil {
		return fmt.Errorf("storage: resolve contradiction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
