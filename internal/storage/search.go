package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// FTSHit is a single keyword-search candidate: a memory id and its raw
// (unnormalized) bm25 score. bm25() returns more-negative-is-better; callers
// normalize before blending with vector scores.
type FTSHit struct {
	MemoryID uuid.UUID
	RawScore float64
}

// filterClause builds the shared WHERE fragment SearchFTS/SubstringSearch
// apply on top of their own required conditions.
func filterClause(filter model.MemoryFilter, args *[]any) []string {
	where := []string{}
	if !filter.IncludeDeleted {
		where = append(where, "m.is_deleted = 0")
	}
	if filter.Type != nil {
		where = append(where, "m.type = ?")
		*args = append(*args, string(*filter.Type))
	}
	if filter.Category != nil {
		where = append(where, "m.category = ?")
		*args = append(*args, *filter.Category)
	}
	if filter.Who != nil {
		where = append(where, "m.who = ?")
		*args = append(*args, *filter.Who)
	}
	if filter.Pinned != nil {
		where = append(where, "m.pinned = ?")
		*args = append(*args, boolToInt(*filter.Pinned))
	}
	if filter.ImportanceMin != nil {
		where = append(where, "m.importance >= ?")
		*args = append(*args, *filter.ImportanceMin)
	}
	if filter.CreatedSince != nil {
		where = append(where, "m.created_at > ?")
		*args = append(*args, filter.CreatedSince.UTC().Format(time.RFC3339Nano))
	}
	for _, tag := range filter.Tags {
		where = append(where, "(',' || m.tags || ',') LIKE ? ESCAPE '\\'")
		*args = append(*args, "%,"+escapeLike(tag)+",%")
	}
	return where
}

// SearchFTS runs a BM25 keyword query over memories_fts, joined back to
// memories for filtering. Returns an empty slice (not an error) if the FTS
// table has no matches or queryText is empty.
func (db *DB) SearchFTS(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]FTSHit, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}

	args := []any{queryText}
	where := filterClause(filter, &args)
	query := `
		SELECT m.id, bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?`
	if len(where) > 0 {
		query += " AND " + strings.Join(where, " AND ")
	}
	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: search fts: %w", err)
	}
	defer rows.Close()

	var out []FTSHit
	for rows.Next() {
		var idStr string
		var score float64
		if err := rows.Scan(&idStr, &score); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		out = append(out, FTSHit{MemoryID: id, RawScore: score})
	}
	return out, rows.Err()
}

// SubstringSearch is the last-resort fallback for databases without a
// usable FTS index (e.g. a bootstrap DB mid-migration): a plain
// case-insensitive LIKE over content.
func (db *DB) SubstringSearch(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]uuid.UUID, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}

	args := []any{"%" + escapeLike(queryText) + "%"}
	where := append([]string{"m.content LIKE ? ESCAPE '\\'"}, filterClause(filter, &args)...)
	query := `SELECT m.id FROM memories m WHERE ` + strings.Join(where, " AND ") + ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: substring search: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
