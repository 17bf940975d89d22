package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// UpsertEmbedding stores a vector for a content hash, replacing any prior
// vector for the same hash (one vector per content hash).
func (db *DB) UpsertEmbedding(ctx context.Context, contentHash string, vector []float32, sourceType string, sourceID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	blob := encodeVector(vector)

	_, err := db.writer.ExecContext(ctx, `
		INSERT INTO embeddings (id, content_hash, dimensions, vector, source_type, source_id, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(content_hash) DO UPDATE SET
			dimensions = excluded.dimensions, vector = excluded.vector,
			source_type = excluded.source_type, source_id = excluded.source_id`,
		id.String(), contentHash, len(vector), blob, sourceType, sourceID.String(), now,
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: upsert embedding: %w", err)
	}
	return id, nil
}

// EmbeddingByContentHash fetches the vector for a content hash, if any.
func (db *DB) EmbeddingByContentHash(ctx context.Context, contentHash string) (model.Embedding, bool, error) {
	row := db.reader.QueryRowContext(ctx, `
		SELECT id, content_hash, dimensions, vector, source_type, source_id, created_at
		FROM embeddings WHERE content_hash = ?`, contentHash)

	var (
		e          model.Embedding
		idStr      string
		sourceID   string
		blob       []byte
		createdAt  string
	)
	err := row.Scan(&idStr, &e.ContentHash, &e.Dimensions, &blob, &e.SourceType, &sourceID, &createdAt)
	if err == sql.ErrNoRows {
		return model.Embedding{}, false, nil
	}
	if err != nil {
		return model.Embedding{}, false, fmt.Errorf("storage: embedding by hash: %w", err)
	}
	e.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Embedding{}, false, err
	}
	e.SourceID, err = uuid.Parse(sourceID)
	if err != nil {
		return model.Embedding{}, false, err
	}
	e.Vector, err = decodeVector(blob)
	if err != nil {
		return model.Embedding{}, false, err
	}
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Embedding{}, false, err
	}
	if e.Dimensions != len(e.Vector) {
		return model.Embedding{}, false, signeterr.Newf(signeterr.Corrupted,
			"storage: embedding declared %d dimensions but stored %d", e.Dimensions, len(e.Vector))
	}
	return e, true, nil
}

// AllEmbeddings returns every stored embedding. Used by the in-process
// vector index, which keeps candidates in memory rather than issuing a
// KNN query SQLite has no native support for.
func (db *DB) AllEmbeddings(ctx context.Context) ([]model.Embedding, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT id, content_hash, dimensions, vector, source_type, source_id, created_at FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("storage: all embeddings: %w", err)
	}
	defer rows.Close()

	var out []model.Embedding
	for rows.Next() {
		var (
			e         model.Embedding
			idStr     string
			sourceID  string
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&idStr, &e.ContentHash, &e.Dimensions, &blob, &e.SourceType, &sourceID, &createdAt); err != nil {
			return nil, err
		}
		e.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		e.SourceID, err = uuid.Parse(sourceID)
		if err != nil {
			return nil, err
		}
		e.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEmbedding removes the vector for a content hash, e.g. when the last
// referring memory is hard-deleted.
func (db *DB) DeleteEmbedding(ctx context.Context, contentHash string) error {
	_, err := db.writer.ExecContext(ctx, `DELETE FROM embeddings WHERE content_hash = ?`, contentHash)
	if err != nil {
		return fmt.Errorf("storage: delete embedding: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	for _, f := range v {
		_ = binary.Write(buf, binary.LittleEndian, math.Float32bits(f))
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, signeterr.New(signeterr.Corrupted, "storage: embedding blob length not a multiple of 4")
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
