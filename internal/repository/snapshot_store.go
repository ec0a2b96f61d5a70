package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ykarpov/dlqueue/internal/domain"
)

const snapshotVersion = 1

// snapshotFile is the on-disk envelope. Tasks stay raw so one corrupt
// record cannot poison the rest of the snapshot.
type snapshotFile struct {
	Version int               `json:"version"`
	Tasks   []json.RawMessage `json:"tasks"`
}

// FileStore persists the queue as a single JSON snapshot, written to a
// temporary file and renamed into place so a crash mid-write leaves the
// previous snapshot intact.
type FileStore struct {
	file string
}

// NewFileStore creates a FileStore writing to filePath.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{file: filepath.Clean(filePath)}
}

// Save atomically writes the full task set.
func (s *FileStore) Save(tasks []*domain.Task) error {
	snap := snapshotFile{Version: snapshotVersion, Tasks: make([]json.RawMessage, 0, len(tasks))}
	for _, task := range tasks {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
		}
		snap.Tasks = append(snap.Tasks, raw)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tempFile := s.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("snapshot saved", "tasks_count", len(tasks), "file_path", s.file)
	return nil
}

// Load reads the snapshot with best-effort per-record recovery. Tasks that
// were running at save time come back as queued, keeping their progress
// checkpoint as the resume point.
func (s *FileStore) Load() ([]*domain.Task, int, error) {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("state file does not exist, starting with empty queue", "file_path", s.file)
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		slog.Warn("state file is empty", "file_path", s.file)
		return nil, 0, nil
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		// The whole document is unreadable. Startup proceeds with an
		// empty queue rather than aborting.
		slog.Warn("state file is corrupt, starting with empty queue",
			"file_path", s.file, "error", err)
		return nil, 1, nil
	}

	tasks := make([]*domain.Task, 0, len(snap.Tasks))
	dropped := 0
	seen := make(map[uuid.UUID]bool)

	for i, raw := range snap.Tasks {
		var task domain.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			slog.Warn("dropping corrupt task record", "index", i, "error", err)
			dropped++
			continue
		}
		if err := validateRecord(&task, seen); err != nil {
			slog.Warn("dropping invalid task record", "index", i, "error", err)
			dropped++
			continue
		}

		if task.Status == domain.StatusRunning {
			// No execution context survives a restart; the task re-enters
			// the priority ordering with its checkpoint preserved.
			task.Status = domain.StatusQueued
		}

		seen[task.ID] = true
		tasks = append(tasks, &task)
	}

	slog.Info("state loaded from file",
		"tasks_count", len(tasks), "dropped_count", dropped, "file_path", s.file)
	return tasks, dropped, nil
}

func validateRecord(task *domain.Task, seen map[uuid.UUID]bool) error {
	if task.ID == uuid.Nil {
		return fmt.Errorf("missing task id")
	}
	if seen[task.ID] {
		return fmt.Errorf("duplicate task id %s", task.ID)
	}
	if strings.TrimSpace(task.URL) == "" {
		return fmt.Errorf("missing url")
	}
	if task.Priority < domain.MinPriority || task.Priority > domain.MaxPriority {
		return fmt.Errorf("priority %d out of range", task.Priority)
	}
	if !task.Status.IsValid() {
		return fmt.Errorf("unknown status %q", task.Status)
	}
	return nil
}
