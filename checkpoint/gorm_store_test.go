package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/taskflow/types"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	store, err := NewGormStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestGormStore_SaveAndLoad(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	cp := memCheckpoint("thread-1", "cp-1", time.Now())
	cp.State.Workflow.CurrentPhase = types.PhaseAnalysis
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "thread-1", "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", loaded.ID)
	assert.Equal(t, types.PhaseAnalysis, loaded.State.Workflow.CurrentPhase)
	assert.Equal(t, cp.State.Task.Title, loaded.State.Task.Title)

	_, err = store.Load(ctx, "thread-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	// Wrong thread does not see the checkpoint.
	_, err = store.Load(ctx, "thread-2", "cp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_SaveSameIDUpserts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	cp := memCheckpoint("thread-1", "cp-1", time.Now())
	require.NoError(t, store.Save(ctx, cp))

	replacement := memCheckpoint("thread-1", "cp-1", time.Now().Add(time.Second))
	replacement.State.Workflow.CurrentPhase = types.PhaseExecution
	require.NoError(t, store.Save(ctx, replacement))

	list, err := store.List(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.PhaseExecution, list[0].State.Workflow.CurrentPhase)
}

func TestGormStore_LatestAndListOrder(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		cp := memCheckpoint("thread-1", fmt.Sprintf("cp-%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, cp))
	}

	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-3", latest.ID)

	list, err := store.List(ctx, "thread-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-3", list[0].ID)
	assert.Equal(t, "cp-2", list[1].ID)
}

func TestGormStore_Delete(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "cp-1", time.Now())))
	require.NoError(t, store.Delete(ctx, "thread-1", "cp-1"))
	assert.ErrorIs(t, store.Delete(ctx, "thread-1", "cp-1"), ErrNotFound)
}

func TestGormStore_DeleteOlderThan(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "stale", now.Add(-2*time.Hour))))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "fresh", now)))

	n, err := store.DeleteOlderThan(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", latest.ID)
}

func TestGormStore_ManagerRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	m := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	s := workflowState("thread-1")
	s.Metrics["confidence_score"] = 0.75

	id, err := m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)

	restored, err := m.LoadCheckpoint(ctx, "thread-1", id)
	require.NoError(t, err)
	assert.Equal(t, 0.75, restored.Metrics["confidence_score"])
	assert.Equal(t, s.Task.Title, restored.Task.Title)
}
