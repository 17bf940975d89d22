package model

import (
	"time"

	"github.com/google/uuid"
)

// Embedding is a dense vector attached to a memory (or, in principle, any
// other content-hashed source row). One vector per content hash.
type Embedding struct {
	ID          uuid.UUID `json:"id"`
	ContentHash string    `json:"content_hash"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector"`
	SourceType  string    `json:"source_type"`
	SourceID    uuid.UUID `json:"source_id"`
	CreatedAt   time.Time `json:"created_at"`
}
