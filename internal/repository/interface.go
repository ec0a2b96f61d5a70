package repository

import (
	"github.com/ykarpov/dlqueue/internal/domain"
)

// SnapshotStore is the durable round-trip of the full queue state.
type SnapshotStore interface {
	// Save atomically replaces the persisted snapshot. A failure is
	// reported but the in-memory queue stays authoritative.
	Save(tasks []*domain.Task) error

	// Load reads the snapshot back, recovering as many valid records as
	// possible. It returns the recovered tasks and the number of records
	// dropped as corrupt. A missing file is an empty queue, not an error.
	Load() ([]*domain.Task, int, error)
}
