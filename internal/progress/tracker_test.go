package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/models"
	"github.com/tariffdesk/jobengine/internal/storage/memory"
)

func seedRunningJob(t *testing.T, store *memory.JobStore, total int) *models.Job {
	t.Helper()

	j := &models.Job{
		ID:       "j1",
		TenantID: "acme",
		Type:     "classification",
		Status:   config.JobStatusRunning,
		Total:    total,
	}
	require.NoError(t, store.Create(context.Background(), j))

	loaded, err := store.GetByID(context.Background(), "j1")
	require.NoError(t, err)
	return loaded
}

func TestRecord_CompletedAndFailedOutcomes(t *testing.T) {
	store := memory.NewJobStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	j := seedRunningJob(t, store, 3)

	require.NoError(t, tracker.Record(ctx, j, "p1", false))
	assert.Equal(t, 1, j.Completed)
	assert.Equal(t, 0, j.Failed)
	assert.Equal(t, "p1", j.CurrentItem)

	require.NoError(t, tracker.Record(ctx, j, "p2", true))
	assert.Equal(t, 1, j.Completed)
	assert.Equal(t, 1, j.Failed)
	assert.Equal(t, "p2", j.CurrentItem)

	// ticks are persisted, not just local
	stored, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Completed)
	assert.Equal(t, 1, stored.Failed)
	assert.Equal(t, 2, stored.LockVersion)
}

func TestRecord_RefusesNonRunningJob(t *testing.T) {
	store := memory.NewJobStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	j := seedRunningJob(t, store, 3)
	j.Status = config.JobStatusPaused

	err := tracker.Record(ctx, j, "p1", false)
	assert.ErrorIs(t, err, ErrInterrupted)

	stored, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Processed(), "a refused tick must not be persisted")
}

func TestRecord_RejectsOverflow(t *testing.T) {
	store := memory.NewJobStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	j := seedRunningJob(t, store, 2)
	require.NoError(t, tracker.Record(ctx, j, "p1", false))
	require.NoError(t, tracker.Record(ctx, j, "p2", false))

	err := tracker.Record(ctx, j, "p3", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress overflow")

	stored, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Processed())
}

func TestRecord_RetriesAgainstFreshReadOnConflict(t *testing.T) {
	store := memory.NewJobStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	j := seedRunningJob(t, store, 5)

	// another writer bumps the version but leaves the job running
	other, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	other.CurrentItem = "p0"
	require.NoError(t, store.Update(ctx, other))

	require.NoError(t, tracker.Record(ctx, j, "p1", false))
	assert.Equal(t, 1, j.Completed)

	stored, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Completed)
}

func TestRecord_InterruptedWhenControlWinsTheRace(t *testing.T) {
	store := memory.NewJobStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	j := seedRunningJob(t, store, 5)

	// a pause lands between the worker's read and its tick
	paused, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	paused.Status = config.JobStatusPaused
	require.NoError(t, store.Update(ctx, paused))

	err = tracker.Record(ctx, j, "p1", false)
	assert.ErrorIs(t, err, ErrInterrupted)

	stored, err := store.GetByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusPaused, stored.Status)
	assert.Equal(t, 0, stored.Processed(), "the pause must win, not the tick")
}
