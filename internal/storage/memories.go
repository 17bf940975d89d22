package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/hashing"
	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// memoryColumns is the fixed column list shared by every memories SELECT so
// scanMemoryGeneric and the query builders stay in lockstep.
const memoryColumns = `id, content_hash, content, normalized_content, type, category, tags,
	source_type, source_id, who, signature, signer_did, confidence, importance, pinned,
	created_at, updated_at, last_accessed, last_rehearsed, rehearsal_count, access_count,
	strength, is_deleted, deleted_at`

// InsertMemory validates and writes a new memory. If a non-deleted row
// already has the same content hash, its id is returned with Duplicate set
// instead of inserting a second row.
func (db *DB) InsertMemory(ctx context.Context, in model.NewMemoryInput, signFn func([]byte) (sig string, signerDID string, err error)) (model.InsertResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return model.InsertResult{}, signeterr.New(signeterr.MalformedFrame, "storage: content must not be empty")
	}
	if !model.ValidMemoryType(in.Type) {
		return model.InsertResult{}, signeterr.Newf(signeterr.MalformedFrame, "storage: unknown memory type %q", in.Type)
	}

	normalized := hashing.Normalize(in.Content)
	contentHash := hashing.ContentHash(in.Content)

	var result model.InsertResult
	err := WithRetry(ctx, 5, 50*time.Millisecond, func() error {
		tx, err := db.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if existing, ok, err := findLiveByHash(ctx, tx, contentHash); err != nil {
			return err
		} else if ok {
			result = model.InsertResult{ID: existing, Duplicate: true}
			return tx.Commit()
		}

		id := uuid.New()
		now := time.Now().UTC()

		var signature, signerDID *string
		if in.Sign && signFn != nil {
			sig, did, err := signFn([]byte(in.Content))
			if err != nil {
				return fmt.Errorf("storage: sign memory: %w", err)
			}
			signature, signerDID = &sig, &did
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (
				id, content_hash, content, normalized_content, type, category, tags,
				source_type, source_id, who, signature, signer_did, confidence, importance, pinned,
				created_at, updated_at, rehearsal_count, access_count, strength, is_deleted
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,0,1.0,0)`,
			id.String(), contentHash, in.Content, normalized, string(in.Type), in.Category, joinTags(in.Tags),
			in.SourceType, in.SourceID, in.Who, signature, signerDID, in.Confidence, in.Importance, boolToInt(in.Pinned),
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("storage: insert memory: %w", err)
		}

		if err := appendHistory(ctx, tx, id, model.HistoryCreated, nil, &in.Content, nil); err != nil {
			return err
		}
		if len(in.Vector) == 0 {
			if err := db.EnqueueEmbedding(ctx, tx, id, in.Content); err != nil {
				return err
			}
		}
		if err := db.MarkMerkleDirty(ctx, tx); err != nil {
			return err
		}

		result = model.InsertResult{ID: id, Duplicate: false}
		return tx.Commit()
	})
	if err != nil {
		return model.InsertResult{}, err
	}
	if !result.Duplicate && len(in.Vector) > 0 {
		if _, err := db.UpsertEmbedding(ctx, contentHash, in.Vector, "memory", result.ID); err != nil {
			return result, fmt.Errorf("storage: store supplied embedding: %w", err)
		}
	}
	return result, nil
}

func findLiveByHash(ctx context.Context, tx *sql.Tx, contentHash string) (uuid.UUID, bool, error) {
	var idStr string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM memories WHERE content_hash = ? AND is_deleted = 0`, contentHash,
	).Scan(&idStr)
	if err == sql.ErrNoRows {
		return uuid.UUID{}, false, nil
	}
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("storage: check duplicate: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("storage: parse duplicate id: %w", err)
	}
	return id, true, nil
}

// UpdateMemory applies patch to an existing memory, recording the prior
// content to history and recomputing the content hash and signature when
// content changes.
func (db *DB) UpdateMemory(ctx context.Context, id uuid.UUID, patch model.MemoryPatch, signFn func([]byte) (sig string, signerDID string, err error)) error {
	return WithRetry(ctx, 5, 50*time.Millisecond, func() error {
		tx, err := db.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		existing, err := getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		newContent := existing.Content
		contentChanged := false

		if patch.Content != nil && *patch.Content != existing.Content {
			newContent = *patch.Content
			contentChanged = true
		}
		category := existing.Category
		if patch.Category != nil {
			category = patch.Category
		}
		tags := existing.Tags
		if patch.Tags != nil {
			tags = patch.Tags
		}
		confidence := existing.Confidence
		if patch.Confidence != nil {
			confidence = *patch.Confidence
		}
		importance := existing.Importance
		if patch.Importance != nil {
			importance = *patch.Importance
		}
		pinned := existing.Pinned
		if patch.Pinned != nil {
			pinned = *patch.Pinned
		}

		contentHash := existing.ContentHash
		normalized := existing.NormalizedContent
		signature := existing.Signature
		signerDID := existing.SignerDID
		if contentChanged {
			contentHash = hashing.ContentHash(newContent)
			normalized = hashing.Normalize(newContent)
			if signFn != nil {
				sig, did, err := signFn([]byte(newContent))
				if err != nil {
					return fmt.Errorf("storage: sign updated memory: %w", err)
				}
				signature, signerDID = &sig, &did
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE memories SET content = ?, normalized_content = ?, content_hash = ?,
				category = ?, tags = ?, confidence = ?, importance = ?, pinned = ?,
				signature = ?, signer_did = ?, updated_at = ?
			WHERE id = ?`,
			newContent, normalized, contentHash, category, joinTags(tags), confidence, importance,
			boolToInt(pinned), signature, signerDID, now.Format(time.RFC3339Nano), id.String(),
		)
		if err != nil {
			return fmt.Errorf("storage: update memory: %w", err)
		}

		if contentChanged {
			old := existing.Content
			if err := appendHistory(ctx, tx, id, model.HistoryUpdated, &old, &newContent, nil); err != nil {
				return err
			}
			if err := db.MarkMerkleDirty(ctx, tx); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// SoftDelete marks a memory deleted and appends a history entry. The row
// remains for audit purposes but is excluded from search, publish, and
// Merkle computation.
func (db *DB) SoftDelete(ctx context.Context, id uuid.UUID, reason string) error {
	return WithRetry(ctx, 5, 50*time.Millisecond, func() error {
		tx, err := db.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0`,
			now, id.String())
		if err != nil {
			return fmt.Errorf("storage: soft delete: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		var r *string
		if reason != "" {
			r = &reason
		}
		if err := appendHistory(ctx, tx, id, model.HistoryDeleted, nil, nil, r); err != nil {
			return err
		}
		if err := db.MarkMerkleDirty(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Recover reverses a soft delete.
func (db *DB) Recover(ctx context.Context, id uuid.UUID) error {
	return WithRetry(ctx, 5, 50*time.Millisecond, func() error {
		tx, err := db.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_deleted = 0, deleted_at = NULL WHERE id = ? AND is_deleted = 1`,
			id.String())
		if err != nil {
			return fmt.Errorf("storage: recover: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if err := appendHistory(ctx, tx, id, model.HistoryRecovered, nil, nil, nil); err != nil {
			return err
		}
		if err := db.MarkMerkleDirty(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RecordAccess bumps access_count and last_accessed.
func (db *DB) RecordAccess(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := db.writer.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		now, id.String())
	if err != nil {
		return fmt.Errorf("storage: record access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRehearsal bumps rehearsal_count and last_rehearsed, and overwrites
// strength with the freshly computed value.
func (db *DB) RecordRehearsal(ctx context.Context, id uuid.UUID, newStrength float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := db.writer.ExecContext(ctx, `
		UPDATE memories SET rehearsal_count = rehearsal_count + 1, last_rehearsed = ?, strength = ?
		WHERE id = ?`, now, newStrength, id.String())
	if err != nil {
		return fmt.Errorf("storage: record rehearsal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStrength writes a recomputed strength value without touching
// rehearsal/access counters. Used by temporal.RecomputeAll.
func (db *DB) UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error {
	_, err := db.writer.ExecContext(ctx, `UPDATE memories SET strength = ? WHERE id = ?`, strength, id.String())
	if err != nil {
		return fmt.Errorf("storage: update strength: %w", err)
	}
	return nil
}

// Get fetches a single memory by id, including soft-deleted rows.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	row := db.reader.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return model.Memory{}, ErrNotFound
	}
	if err != nil {
		return model.Memory{}, fmt.Errorf("storage: get memory: %w", err)
	}
	return m, nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.Memory, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return model.Memory{}, ErrNotFound
	}
	if err != nil {
		return model.Memory{}, fmt.Errorf("storage: get memory for update: %w", err)
	}
	return m, nil
}

// List returns memories matching filter, most recently created first.
func (db *DB) List(ctx context.Context, filter model.MemoryFilter, limit, offset int) ([]model.Memory, error) {
	where := []string{}
	args := []any{}

	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.Who != nil {
		where = append(where, "who = ?")
		args = append(args, *filter.Who)
	}
	if filter.Pinned != nil {
		where = append(where, "pinned = ?")
		args = append(args, boolToInt(*filter.Pinned))
	}
	if filter.ImportanceMin != nil {
		where = append(where, "importance >= ?")
		args = append(args, *filter.ImportanceMin)
	}
	if filter.CreatedSince != nil {
		where = append(where, "created_at > ?")
		args = append(args, filter.CreatedSince.UTC().Format(time.RFC3339Nano))
	}
	for _, tag := range filter.Tags {
		where = append(where, "(',' || tags || ',') LIKE ? ESCAPE '\\'")
		args = append(args, "%,"+escapeLike(tag)+",%")
	}

	query := `SELECT ` + memoryColumns + ` FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list memories: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Enrich fetches the memories for ids, preserving the caller's order. An id
// with no matching row is simply omitted; soft-deleted rows are not
// filtered out here and are returned like any other.
func (db *DB) Enrich(ctx context.Context, ids []uuid.UUID) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: enrich: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan memory: %w", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// LiveContentHashesAscending returns the content hashes of every non-deleted
// memory in ascending order, the fixed leaf order merkle.BuildAndStore
// builds its Merkle tree from.
func (db *DB) LiveContentHashesAscending(ctx context.Context) ([]string, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT content_hash FROM memories WHERE is_deleted = 0 ORDER BY content_hash ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list content hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row *sql.Row) (model.Memory, error) {
	return scanMemoryGeneric(row)
}

func scanMemoryRows(rows *sql.Rows) (model.Memory, error) {
	return scanMemoryGeneric(rows)
}

func scanMemoryGeneric(s rowScanner) (model.Memory, error) {
	var (
		m                                    model.Memory
		idStr                                string
		tags                                 string
		category, sourceType, sourceID, who  sql.NullString
		signature, signerDID                 sql.NullString
		createdAt, updatedAt                 string
		lastAccessed, lastRehearsed          sql.NullString
		pinned, isDeleted                    int
		deletedAt                            sql.NullString
	)
	err := s.Scan(
		&idStr, &m.ContentHash, &m.Content, &m.NormalizedContent, &m.Type, &category, &tags,
		&sourceType, &sourceID, &who, &signature, &signerDID, &m.Confidence, &m.Importance, &pinned,
		&createdAt, &updatedAt, &lastAccessed, &lastRehearsed, &m.RehearsalCount, &m.AccessCount,
		&m.Strength, &isDeleted, &deletedAt,
	)
	if err != nil {
		return model.Memory{}, err
	}

	m.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Memory{}, fmt.Errorf("parse memory id: %w", err)
	}
	if category.Valid {
		m.Category = &category.String
	}
	m.Tags = splitTags(tags)
	if sourceType.Valid {
		m.SourceType = &sourceType.String
	}
	if sourceID.Valid {
		m.SourceID = &sourceID.String
	}
	if who.Valid {
		m.Who = &who.String
	}
	if signature.Valid {
		m.Signature = &signature.String
	}
	if signerDID.Valid {
		m.SignerDID = &signerDID.String
	}
	m.Pinned = pinned != 0
	m.IsDeleted = isDeleted != 0

	m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Memory{}, fmt.Errorf("parse created_at: %w", err)
	}
	m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Memory{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAccessed.String)
		if err != nil {
			return model.Memory{}, err
		}
		m.LastAccessed = &t
	}
	if lastRehearsed.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRehearsed.String)
		if err != nil {
			return model.Memory{}, err
		}
		m.LastRehearsed = &t
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return model.Memory{}, err
		}
		m.DeletedAt = &t
	}
	return m, nil
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

func splitTags(raw string) []string {
	trimmed := strings.Trim(raw, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
