package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// SelectPublishable returns the non-deleted, not-yet-shared memories that
// match any publish rule applying to peerID, in created_at order.
func (db *DB) SelectPublishable(ctx context.Context, peerID uuid.UUID, since *time.Time, types []model.MemoryType, limit int) ([]model.Memory, error) {
	rules, err := db.ListPublishRules(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"m.is_deleted = 0", "sm.memory_id IS NULL"}
	args := []any{peerID.String()}
	if since != nil {
		where = append(where, "m.created_at > ?")
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "m.type IN ("+strings.Join(placeholders, ",")+")")
	}

	query := `
		SELECT ` + memoryColumns + `
		FROM memories m
		LEFT JOIN shared_memories sm ON sm.memory_id = m.id AND sm.peer_id = ?
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit*4) // over-fetch; rule matching narrows below
	}

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: select publishable candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.Memory
	for _, m := range candidates {
		if matchesAnyRule(rules, m, peerID) {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func matchesAnyRule(rules []model.PublishRule, m model.Memory, peerID uuid.UUID) bool {
	for _, r := range rules {
		if !r.MatchesPeer(peerID) {
			continue
		}
		if m.Importance < r.MinImportance {
			continue
		}
		if r.Query != nil && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(*r.Query)) {
			continue
		}
		if len(r.Types) > 0 && !containsType(r.Types, m.Type) {
			continue
		}
		if len(r.Tags) > 0 && !anyTagMatches(r.Tags, m.Tags) {
			continue
		}
		return true
	}
	return false
}

func containsType(types []model.MemoryType, t model.MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func anyTagMatches(ruleTags, memTags []string) bool {
	set := make(map[string]struct{}, len(memTags))
	for _, t := range memTags {
		set[t] = struct{}{}
	}
	for _, t := range ruleTags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// MarkShared records that memoryID has been shipped to peerID. Idempotent.
func (db *DB) MarkShared(ctx context.Context, memoryID, peerID uuid.UUID) error {
	_, err := db.writer.ExecContext(ctx, `
		INSERT INTO shared_memories (memory_id, peer_id, shared_at) VALUES (?,?,?)
		ON CONFLICT(memory_id, peer_id) DO NOTHING`,
		memoryID.String(), peerID.String(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: mark shared: %w", err)
	}
	return nil
}

// InsertReceivedMemory records an inbound memory from a peer, deduplicated
// on (peer_id, original_content). Returns ok=false if already recorded.
func (db *DB) InsertReceivedMemory(ctx context.Context, rm model.ReceivedMemory) (uuid.UUID, bool, error) {
	id := uuid.New()
	res, err := db.writer.ExecContext(ctx, `
		INSERT INTO received_memories (id, peer_id, original_content, signature, signer_did, verified, promoted, received_at)
		VALUES (?,?,?,?,?,?,0,?)
		ON CONFLICT(peer_id, original_content) DO NOTHING`,
		id.String(), rm.PeerID.String(), rm.OriginalContent, rm.Signature, rm.SignerDID,
		boolToInt(rm.Verified), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("storage: insert received memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return id, n > 0, nil
}

// PromoteReceivedMemory marks a received memory as promoted into the main
// memory store, recording the resulting memory id. This is always an
// explicit, operator-initiated call: federation never does this itself.
func (db *DB) PromoteReceivedMemory(ctx context.Context, id, memoryID uuid.UUID) error {
	res, err := db.writer.ExecContext(ctx,
		`UPDATE received_memories SET promoted = 1, promoted_memory_id = ? WHERE id = ? AND promoted = 0`,
		memoryID.String(), id.String())
	if err != nil {
		return fmt.Errorf("storage: promote received memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnpromotedReceivedMemories returns received memories awaiting an
// operator decision.
func (db *DB) ListUnpromotedReceivedMemories(ctx context.Context, peerID *uuid.UUID) ([]model.ReceivedMemory, error) {
	query := `SELECT id, peer_id, original_content, signature, signer_did, verified, promoted,
		promoted_memory_id, received_at FROM received_memories WHERE promoted = 0`
	args := []any{}
	if peerID != nil {
		query += " AND peer_id = ?"
		args = append(args, peerID.String())
	}
	query += " ORDER BY received_at ASC"

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list unpromoted received memories: %w", err)
	}
	defer rows.Close()

	var out []model.ReceivedMemory
	for rows.Next() {
		var (
			rm                                   model.ReceivedMemory
			idStr, peerIDStr                     string
			signature, signerDID, promotedMemID  sql.NullString
			verified, promoted                   int
			receivedAt                           string
		)
		if err := rows.Scan(&idStr, &peerIDStr, &rm.OriginalContent, &signature, &signerDID,
			&verified, &promoted, &promotedMemID, &receivedAt); err != nil {
			return nil, err
		}
		rm.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		rm.PeerID, err = uuid.Parse(peerIDStr)
		if err != nil {
			return nil, err
		}
		rm.Signature = nullableString(signature)
		rm.SignerDID = nullableString(signerDID)
		rm.Verified = verified != 0
		rm.Promoted = promoted != 0
		if promotedMemID.Valid {
			id, err := uuid.Parse(promotedMemID.String)
			if err != nil {
				return nil, err
			}
			rm.PromotedMemoryID = &id
		}
		rm.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// InsertPublishRule creates a new publish rule.
func (db *DB) InsertPublishRule(ctx context.Context, r model.PublishRule) (uuid.UUID, error) {
	id := uuid.New()
	peerIDs, err := json.Marshal(r.PeerIDs)
	if err != nil {
		return uuid.UUID{}, err
	}
	types := make([]string, len(r.Types))
	for i, t := range r.Types {
		types[i] = string(t)
	}

	_, err = db.writer.ExecContext(ctx, `
		INSERT INTO publish_rules (id, name, query, tags, types, min_importance, peer_ids, auto_publish, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id.String(), r.Name, r.Query, joinTags(r.Tags), strings.Join(types, ","),
		r.MinImportance, string(peerIDs), boolToInt(r.AutoPublish),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: insert publish rule: %w", err)
	}
	return id, nil
}

// ListPublishRules returns every configured publish rule.
func (db *DB) ListPublishRules(ctx context.Context) ([]model.PublishRule, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, name, query, tags, types, min_importance, peer_ids, auto_publish, created_at
		FROM publish_rules`)
	if err != nil {
		return nil, fmt.Errorf("storage: list publish rules: %w", err)
	}
	defer rows.Close()

	var out []model.PublishRule
	for rows.Next() {
		var (
			r                      model.PublishRule
			idStr                  string
			query                  sql.NullString
			tags, types, peerIDs   string
			autoPublish            int
			createdAt              string
		)
		if err := rows.Scan(&idStr, &r.Name, &query, &tags, &types, &r.MinImportance,
			&peerIDs, &autoPublish, &createdAt); err != nil {
			return nil, err
		}
		r.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		r.Query = nullableString(query)
		r.Tags = splitTags(tags)
		if types != "" {
			for _, t := range strings.Split(types, ",") {
				r.Types = append(r.Types, model.MemoryType(t))
			}
		}
		var peerUUIDs []uuid.UUID
		if err := json.Unmarshal([]byte(peerIDs), &peerUUIDs); err == nil {
			r.PeerIDs = peerUUIDs
		}
		r.AutoPublish = autoPublish != 0
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
