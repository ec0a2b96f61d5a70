package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykarpov/dlqueue/internal/domain"
)

func newTask(t *testing.T, priority int, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("https://example.com/video", domain.Options{Quality: "720p"}, priority)
	require.NoError(t, err)
	task.Status = status
	return task
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	tasks := []*domain.Task{
		newTask(t, 8, domain.StatusQueued),
		newTask(t, 3, domain.StatusPaused),
		newTask(t, 0, domain.StatusCompleted),
	}
	tasks[1].Progress = domain.Progress{Percent: 42, DownloadedBytes: 4200, TotalBytes: 10000}

	require.NoError(t, store.Save(tasks))

	loaded, dropped, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, loaded, 3)

	byID := make(map[uuid.UUID]*domain.Task)
	for _, task := range loaded {
		byID[task.ID] = task
	}
	for _, orig := range tasks {
		got, ok := byID[orig.ID]
		require.True(t, ok)
		assert.Equal(t, orig.URL, got.URL)
		assert.Equal(t, orig.Priority, got.Priority)
		assert.Equal(t, orig.Status, got.Status)
		assert.Equal(t, orig.Options, got.Options)
		assert.Equal(t, orig.Progress, got.Progress)
	}
}

func TestFileStore_Load_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	tasks, dropped, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, dropped)
}

func TestFileStore_Load_EmptyFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte(" \n"), 0644))

	tasks, dropped, err := NewFileStore(file).Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, dropped)
}

func TestFileStore_Load_RunningRestoredAsQueued(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	running := newTask(t, 5, domain.StatusRunning)
	running.Progress = domain.Progress{Percent: 61, DownloadedBytes: 610}
	require.NoError(t, store.Save([]*domain.Task{running}))

	loaded, _, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	assert.Equal(t, domain.StatusQueued, loaded[0].Status)
	// The checkpoint survives as the resume point.
	assert.Equal(t, float64(61), loaded[0].Progress.Percent)
}

func TestFileStore_Load_DropsCorruptRecords(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(file)

	good1 := newTask(t, 7, domain.StatusQueued)
	good2 := newTask(t, 2, domain.StatusError)
	good2.Error = "failed earlier"
	require.NoError(t, store.Save([]*domain.Task{good1, good2}))

	// Splice a corrupt record between the two valid ones.
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var snap snapshotFile
	require.NoError(t, json.Unmarshal(data, &snap))
	snap.Tasks = []json.RawMessage{
		snap.Tasks[0],
		json.RawMessage(`{"id":"not-a-uuid","url":42}`),
		snap.Tasks[1],
	}
	data, err = json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0644))

	loaded, dropped, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, loaded, 2)
	assert.Equal(t, good1.ID, loaded[0].ID)
	assert.Equal(t, good2.ID, loaded[1].ID)
}

func TestFileStore_Load_DropsInvalidRecords(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")

	valid := newTask(t, 4, domain.StatusQueued)
	raw, err := json.Marshal(valid)
	require.NoError(t, err)

	snap := snapshotFile{
		Version: snapshotVersion,
		Tasks: []json.RawMessage{
			raw,
			json.RawMessage(`{"id":"` + uuid.NewString() + `","url":"","priority":3,"status":"queued"}`),
			json.RawMessage(`{"id":"` + uuid.NewString() + `","url":"https://example.com","priority":99,"status":"queued"}`),
			json.RawMessage(`{"id":"` + uuid.NewString() + `","url":"https://example.com","priority":3,"status":"warp"}`),
		},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0644))

	loaded, dropped, err := NewFileStore(file).Load()
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	require.Len(t, loaded, 1)
	assert.Equal(t, valid.ID, loaded[0].ID)
}

func TestFileStore_Load_WholeFileCorrupt(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"version":1,"tasks":[{"id"`), 0644))

	tasks, dropped, err := NewFileStore(file).Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Positive(t, dropped)
}

func TestFileStore_Load_IgnoresUnknownFields(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")

	record := `{"id":"` + uuid.NewString() + `","url":"https://example.com/v","priority":6,` +
		`"status":"queued","progress":{"percent":0},"some_future_field":{"nested":true}}`
	snap := `{"version":2,"tasks":[` + record + `]}`
	require.NoError(t, os.WriteFile(file, []byte(snap), 0644))

	loaded, dropped, err := NewFileStore(file).Load()
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, loaded, 1)
	assert.Equal(t, 6, loaded[0].Priority)
}

func TestFileStore_Save_Atomic(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.json")
	store := NewFileStore(file)

	require.NoError(t, store.Save([]*domain.Task{newTask(t, 1, domain.StatusQueued)}))
	require.NoError(t, store.Save([]*domain.Task{newTask(t, 2, domain.StatusQueued)}))

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
