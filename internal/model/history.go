package model

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEvent enumerates the append-only audit events recorded against a
// memory.
type HistoryEvent string

const (
	HistoryCreated   HistoryEvent = "created"
	HistoryUpdated   HistoryEvent = "updated"
	HistoryDeleted   HistoryEvent = "deleted"
	HistoryRecovered HistoryEvent = "recovered"
	HistoryMerged    HistoryEvent = "merged"
	HistorySplit     HistoryEvent = "split"
	HistoryNone      HistoryEvent = "none"
)

// MemoryHistory is one row of a memory's append-only audit trail. Never
// mutated or deleted once written.
type MemoryHistory struct {
	ID          uuid.UUID    `json:"id"`
	MemoryID    uuid.UUID    `json:"memory_id"`
	Event       HistoryEvent `json:"event"`
	OldContent  *string      `json:"old_content,omitempty"`
	NewContent  *string      `json:"new_content,omitempty"`
	ChangedBy   *string      `json:"changed_by,omitempty"`
	Reason      *string      `json:"reason,omitempty"`
	SessionID   *string      `json:"session_id,omitempty"`
	RequestID   *string      `json:"request_id,omitempty"`
	ActorType   *string      `json:"actor_type,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
