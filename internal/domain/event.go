package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies notifications delivered to presentation shells.
type EventType string

const (
	EventSubmitted    EventType = "submitted"
	EventStateChanged EventType = "state_changed"
	EventProgress     EventType = "progress"
	EventRemoved      EventType = "removed"

	// EventFault covers background faults that do not belong to a state
	// transition: persistence failures, leaked worker slots.
	EventFault EventType = "fault"
)

// Event is a single notification on the observer channel. Task is a
// detached copy when present.
type Event struct {
	Type   EventType  `json:"type"`
	TaskID uuid.UUID  `json:"task_id,omitempty"`
	Task   *Task      `json:"task,omitempty"`
	Detail string     `json:"detail,omitempty"`
	Time   time.Time  `json:"time"`
	Status TaskStatus `json:"status,omitempty"`
}
