// Package model defines Signet's core domain types: the memory row and
// everything that hangs off it (embeddings, knowledge-graph entities,
// decisions, contradictions, history, Merkle roots, and the federation
// layer). Types use strong typing (UUIDs, time.Time, enums) in the style of
// the rest of this module rather than bare maps.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MemoryType classifies what kind of thing a memory records.
type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeDecision   MemoryType = "decision"
	MemoryTypeRationale  MemoryType = "rationale"
	MemoryTypeDailyLog   MemoryType = "daily-log"
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeProcedural MemoryType = "procedural"
	MemoryTypeSemantic   MemoryType = "semantic"
	MemoryTypeSystem     MemoryType = "system"
	MemoryTypePattern    MemoryType = "pattern"
)

// ValidMemoryType reports whether t is one of the recognized memory types.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case MemoryTypeFact, MemoryTypePreference, MemoryTypeDecision, MemoryTypeRationale,
		MemoryTypeDailyLog, MemoryTypeEpisodic, MemoryTypeProcedural, MemoryTypeSemantic,
		MemoryTypeSystem, MemoryTypePattern:
		return true
	default:
		return false
	}
}

// Memory is the central entity: a single piece of content-addressed,
// optionally signed, agent memory.
type Memory struct {
	ID uuid.UUID `json:"id"`

	ContentHash        string `json:"content_hash"`
	Content             string `json:"content"`
	NormalizedContent   string `json:"normalized_content"`

	Type     MemoryType `json:"type"`
	Category *string    `json:"category,omitempty"`
	Tags     []string   `json:"tags,omitempty"`

	SourceType *string `json:"source_type,omitempty"`
	SourceID   *string `json:"source_id,omitempty"`
	Who        *string `json:"who,omitempty"`
	Signature  *string `json:"signature,omitempty"` // base64 detached Ed25519 over Content.
	SignerDID  *string `json:"signer_did,omitempty"`

	Confidence float64 `json:"confidence"`
	Importance float64 `json:"importance"`
	Pinned     bool    `json:"pinned"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty"`
	LastRehearsed  *time.Time `json:"last_rehearsed,omitempty"`
	RehearsalCount int        `json:"rehearsal_count"`
	AccessCount    int        `json:"access_count"`
	Strength       float64    `json:"strength"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// LastTouch returns the most recent of CreatedAt, LastAccessed, and
// LastRehearsed — the anchor the temporal decay model measures from.
func (m Memory) LastTouch() time.Time {
	touch := m.CreatedAt
	if m.LastAccessed != nil && m.LastAccessed.After(touch) {
		touch = *m.LastAccessed
	}
	if m.LastRehearsed != nil && m.LastRehearsed.After(touch) {
		touch = *m.LastRehearsed
	}
	return touch
}

// NewMemoryInput is the set of fields a caller supplies to insert a memory;
// everything else (id, hash, timestamps, strength) is derived by Store.
type NewMemoryInput struct {
	Content    string
	Type       MemoryType
	Category   *string
	Tags       []string
	SourceType *string
	SourceID   *string
	Who        *string
	Confidence float64
	Importance float64
	Pinned     bool
	Sign       bool

	// Vector is an optional precomputed embedding. If nil, the memory is
	// queued for asynchronous embedding instead.
	Vector []float32
}

// MemoryPatch describes a partial update to an existing memory. Nil fields
// are left unchanged.
type MemoryPatch struct {
	Content    *string
	Category   *string
	Tags       []string
	Confidence *float64
	Importance *float64
	Pinned     *bool
}

// MemoryFilter narrows a Store.List / search call.
type MemoryFilter struct {
	Type          *MemoryType
	Category      *string
	Tags          []string // all-of
	Who           *string
	Pinned        *bool
	ImportanceMin *float64
	CreatedSince  *time.Time
	IncludeDeleted bool
}

// InsertResult reports the outcome of Store.InsertMemory.
type InsertResult struct {
	ID        uuid.UUID
	Duplicate bool
}
