package signet

import "time"

// MemoryType classifies what kind of thing a memory records. Mirrors
// internal/model.MemoryType — duplicated here so extension interfaces
// never need to import an internal package.
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

// Memory is the public, curated view of a stored memory passed to extension
// interfaces (Embedder, Judge, EventHook). No internal package imports —
// safe to use from outside the module.
type Memory struct {
	ID                string
	ContentHash       string
	Content           string
	NormalizedContent string
	Type              MemoryType
	Category          *string
	Tags              []string
	Who               *string
	Confidence        float64
	Importance        float64
	Pinned            bool
	Strength          float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Decision is the public view of a memory's attached decision metadata.
type Decision struct {
	MemoryID     string
	Conclusion   string
	Reasoning    []string
	Alternatives []string
	Confidence   float64
	Revisitable  bool
	Outcome      *string
	CreatedAt    time.Time
}

// Contradiction is the public view of a detected conflict between two
// memories, passed to a Judge for adjudication and to EventHook on
// detection.
type Contradiction struct {
	NewMemory Memory
	OldMemory Memory
}

// Verdict is a Judge's ruling on a Contradiction.
type Verdict struct {
	// Conflicting reports whether the two memories actually disagree, as
	// opposed to merely overlapping in topic.
	Conflicting bool
	Reasoning   string
	// Resolution suggests how to reconcile the conflict: "update" (the new
	// memory supersedes the old), "keep_both", or "ignore_new". Advisory —
	// the caller decides whether to act on it.
	Resolution string
}

// SearchFilters mirrors model.MemoryFilter for use in the public Embedder
// and Searcher interfaces. All fields are primitive or stdlib types.
type SearchFilters struct {
	Type          *MemoryType
	Category      *string
	Tags          []string
	Who           *string
	Pinned        *bool
	ImportanceMin *float64
	CreatedSince  *time.Time
}

// SearchResult holds a memory ID and similarity score from a Searcher.
type SearchResult struct {
	MemoryID string
	Score    float32
}

// AnchorReceipt is what a Chain capability returns after anchoring a Merkle
// root to external storage.
type AnchorReceipt struct {
	// TxID identifies the anchoring transaction in whatever system recorded
	// it (a blockchain tx hash, a timestamp-authority receipt ID, ...).
	TxID       string
	AnchoredAt time.Time
}
