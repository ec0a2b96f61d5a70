package domain

// TaskStatus represents the current state of a Task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusError     TaskStatus = "error"
	StatusCancelled TaskStatus = "cancelled"
)

// transitions is the full state machine. A status missing from the map
// (or a target missing from its list) is an illegal move.
var transitions = map[TaskStatus][]TaskStatus{
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusError, StatusCancelled},
	StatusPaused:  {StatusQueued, StatusCancelled},
	StatusError:   {StatusQueued},
}

// CanTransition reports whether from -> to is a legal state machine move.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s TaskStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused, StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the task currently occupies execution capacity.
func (s TaskStatus) IsActive() bool {
	return s == StatusRunning
}

// IsTerminal reports whether the task can never be scheduled again.
// Error is deliberately not terminal: a retry moves it back to Queued.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsFinished reports whether the task is out of the scheduling rotation
// until an explicit user action.
func (s TaskStatus) IsFinished() bool {
	return s.IsTerminal() || s == StatusError
}
