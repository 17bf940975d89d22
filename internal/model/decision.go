package model

import (
	"time"

	"github.com/google/uuid"
)

// Decision is structured metadata attached to a memory recording a choice:
// what was concluded, why, and what else was on the table. Design-level
// only — no prompting or LLM orchestration lives here.
type Decision struct {
	ID           uuid.UUID  `json:"id"`
	MemoryID     uuid.UUID  `json:"memory_id"`
	Conclusion   string     `json:"conclusion"`
	Reasoning    []string   `json:"reasoning,omitempty"`
	Alternatives []string   `json:"alternatives,omitempty"`
	Confidence   float64    `json:"confidence"`
	Revisitable  bool       `json:"revisitable"`
	Outcome      *string    `json:"outcome,omitempty"`
	OutcomeAt    *time.Time `json:"outcome_at,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ContradictionResolution records how a detected contradiction between two
// memories was resolved.
type ContradictionResolution string

const (
	ResolutionNone       ContradictionResolution = ""
	ResolutionUpdate     ContradictionResolution = "update"
	ResolutionKeepBoth   ContradictionResolution = "keep_both"
	ResolutionIgnoreNew  ContradictionResolution = "ignore_new"
)

// ResolvedBy identifies who performed a contradiction resolution.
type ResolvedBy string

const (
	ResolvedByAuto   ResolvedBy = "auto"
	ResolvedByManual ResolvedBy = "manual"
)

// Contradiction links a newly written memory to an older one it conflicts
// with, along with how (if at all) the conflict was resolved. Detection
// itself is delegated to an external Judge capability; this is the
// persisted record of the outcome.
type Contradiction struct {
	ID            uuid.UUID                `json:"id"`
	NewMemoryID   uuid.UUID                `json:"new_memory_id"`
	OldMemoryID   uuid.UUID                `json:"old_memory_id"`
	Resolution    ContradictionResolution   `json:"resolution"`
	Reasoning     string                    `json:"reasoning"`
	ResolvedBy    ResolvedBy                `json:"resolved_by,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}
