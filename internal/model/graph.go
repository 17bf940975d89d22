package model

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a node in the knowledge-graph layer extracted from memory
// content: a person, project, tool, place, or other recurring noun phrase.
type Entity struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	CanonicalName string    `json:"canonical_name"`
	EntityType    string    `json:"entity_type"`
	Mentions      int       `json:"mentions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Relation is a directed, typed, weighted edge between two entities.
type Relation struct {
	ID         uuid.UUID `json:"id"`
	FromEntity uuid.UUID `json:"from_entity_id"`
	ToEntity   uuid.UUID `json:"to_entity_id"`
	RelType    string    `json:"rel_type"`
	Weight     float64   `json:"weight"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemoryEntityMention links a memory to an entity it mentions.
type MemoryEntityMention struct {
	MemoryID  uuid.UUID `json:"memory_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	CreatedAt time.Time `json:"created_at"`
}
