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

// ListEntities returns every entity in the knowledge graph, ordered by
// canonical name. Used by the full-export path; extraction itself is out of
// scope for this package.
func (db *DB) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, name, canonical_name, entity_type, mentions, created_at, updated_at
		FROM entities ORDER BY canonical_name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(rows *sql.Rows) (model.Entity, error) {
	var (
		e                    model.Entity
		idStr                string
		createdAt, updatedAt string
	)
	if err := rows.Scan(&idStr, &e.Name, &e.CanonicalName, &e.EntityType, &e.Mentions, &createdAt, &updatedAt); err != nil {
		return model.Entity{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Entity{}, err
	}
	e.ID = id
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Entity{}, err
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return model.Entity{}, err
	}
	return e, nil
}

// ListRelations returns every edge in the knowledge graph.
func (db *DB) ListRelations(ctx context.Context) ([]model.Relation, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, from_entity_id, to_entity_id, rel_type, weight, confidence, created_at
		FROM relations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("storage: list relations: %w", err)
	}
	defer rows.Close()

	var out []model.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelation(rows *sql.Rows) (model.Relation, error) {
	var (
		r                          model.Relation
		idStr, fromStr, toStr      string
		createdAt                  string
	)
	if err := rows.Scan(&idStr, &fromStr, &toStr, &r.RelType, &r.Weight, &r.Confidence, &createdAt); err != nil {
		return model.Relation{}, err
	}
	var err error
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return model.Relation{}, err
	}
	if r.FromEntity, err = uuid.Parse(fromStr); err != nil {
		return model.Relation{}, err
	}
	if r.ToEntity, err = uuid.Parse(toStr); err != nil {
		return model.Relation{}, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Relation{}, err
	}
	return r, nil
}

// ListDecisions returns every decision record, ordered by creation time.
// Used by the full-export path, which walks decisions independently of the
// per-memory lookup InsertDecision's sibling DecisionByMemory supports.
func (db *DB) ListDecisions(ctx context.Context) ([]model.Decision, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, memory_id, conclusion, reasoning, alternatives, confidence, revisitable,
			outcome, outcome_at, reviewed_at, created_at
		FROM decisions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("storage: list decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		d, err := scanDecisionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecisionRows(rows *sql.Rows) (model.Decision, error) {
	var (
		d                              model.Decision
		idStr, memIDStr                string
		reasoning, alternatives        string
		revisitable                    int
		outcome, outcomeAt, reviewedAt sql.NullString
		createdAt                      string
	)
	if err := rows.Scan(&idStr, &memIDStr, &d.Conclusion, &reasoning, &alternatives, &d.Confidence,
		&revisitable, &outcome, &outcomeAt, &reviewedAt, &createdAt); err != nil {
		return model.Decision{}, err
	}

	var err error
	if d.ID, err = uuid.Parse(idStr); err != nil {
		return model.Decision{}, err
	}
	if d.MemoryID, err = uuid.Parse(memIDStr); err != nil {
		return model.Decision{}, err
	}
	if err := json.Unmarshal([]byte(reasoning), &d.Reasoning); err != nil {
		return model.Decision{}, err
	}
	if err := json.Unmarshal([]byte(alternatives), &d.Alternatives); err != nil {
		return model.Decision{}, err
	}
	d.Outcome = nullableString(outcome)
	d.Revisitable = revisitable != 0
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Decision{}, err
	}
	if outcomeAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, outcomeAt.String)
		if err != nil {
			return model.Decision{}, err
		}
		d.OutcomeAt = &t
	}
	if reviewedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, reviewedAt.String)
		if err != nil {
			return model.Decision{}, err
		}
		d.ReviewedAt = &t
	}
	return d, nil
}
