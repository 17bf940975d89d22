package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signet-ai/signet/internal/model"
)

// MemoryByContentHash looks up a live memory by its content hash, the key
// export/import uses to detect whether an incoming record already exists
// locally.
func (db *DB) MemoryByContentHash(ctx context.Context, contentHash string) (model.Memory, bool, error) {
	row := db.reader.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE content_hash = ? AND is_deleted = 0`, contentHash)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return model.Memory{}, false, nil
	}
	if err != nil {
		return model.Memory{}, false, fmt.Errorf("storage: lookup by content hash: %w", err)
	}
	return m, true, nil
}

// ImportMemory writes m verbatim (id, timestamps, signature, and all),
// replacing any row with the same id. Unlike InsertMemory it performs no
// hashing, signing, or dedup decision of its own — the caller (the bundle
// importer) has already decided this record should land as-is.
func (db *DB) ImportMemory(ctx context.Context, m model.Memory) error {
	_, err := db.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (
			id, content_hash, content, normalized_content, type, category, tags,
			source_type, source_id, who, signature, signer_did, confidence, importance, pinned,
			created_at, updated_at, last_accessed, last_rehearsed, rehearsal_count, access_count,
			strength, is_deleted, deleted_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID.String(), m.ContentHash, m.Content, m.NormalizedContent, string(m.Type), m.Category, joinTags(m.Tags),
		m.SourceType, m.SourceID, m.Who, m.Signature, m.SignerDID, m.Confidence, m.Importance, boolToInt(m.Pinned),
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		formatOptionalTime(m.LastAccessed), formatOptionalTime(m.LastRehearsed), m.RehearsalCount, m.AccessCount,
		m.Strength, boolToInt(m.IsDeleted), formatOptionalTime(m.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: import memory: %w", err)
	}
	return db.MarkMerkleDirty(ctx, nil)
}

// ImportDecision writes d verbatim, replacing any row with the same id.
func (db *DB) ImportDecision(ctx context.Context, d model.Decision) error {
	reasoning, err := json.Marshal(d.Reasoning)
	if err != nil {
		return fmt.Errorf("storage: marshal reasoning: %w", err)
	}
	alternatives, err := json.Marshal(d.Alternatives)
	if err != nil {
		return fmt.Errorf("storage: marshal alternatives: %w", err)
	}
	_, err = db.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO decisions (id, memory_id, conclusion, reasoning, alternatives, confidence,
			revisitable, outcome, outcome_at, reviewed_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID.String(), d.MemoryID.String(), d.Conclusion, string(reasoning), string(alternatives),
		d.Confidence, boolToInt(d.Revisitable), d.Outcome, formatOptionalTime(d.OutcomeAt),
		formatOptionalTime(d.ReviewedAt), d.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: import decision: %w", err)
	}
	return nil
}

// ImportEntity writes e verbatim, replacing any row with the same id.
func (db *DB) ImportEntity(ctx context.Context, e model.Entity) error {
	_, err := db.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO entities (id, name, canonical_name, entity_type, mentions, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.ID.String(), e.Name, e.CanonicalName, e.EntityType, e.Mentions,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: import entity: %w", err)
	}
	return nil
}

// ImportRelation writes r verbatim, replacing any row with the same id. The
// referenced entities must already exist (import entities before relations).
func (db *DB) ImportRelation(ctx context.Context, r model.Relation) error {
	_, err := db.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO relations (id, from_entity_id, to_entity_id, rel_type, weight, confidence, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		r.ID.String(), r.FromEntity.String(), r.ToEntity.String(), r.RelType, r.Weight, r.Confidence,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: import relation: %w", err)
	}
	return nil
}
