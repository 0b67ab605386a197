package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memCheckpoint(threadID, id string, at time.Time) *Checkpoint {
	return &Checkpoint{
		ID:        id,
		ThreadID:  threadID,
		State:     workflowState(threadID),
		CreatedAt: at,
	}
}

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		cp := memCheckpoint("thread-1", fmt.Sprintf("cp-%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, cp))
	}

	list, err := store.List(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Newest first; the two oldest were evicted.
	assert.Equal(t, "cp-4", list[0].ID)
	assert.Equal(t, "cp-3", list[1].ID)
	assert.Equal(t, "cp-2", list[2].ID)

	_, err = store.Load(ctx, "thread-1", "cp-0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveSameIDReplaces(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	cp := memCheckpoint("thread-1", "cp-1", time.Now())
	require.NoError(t, store.Save(ctx, cp))

	replacement := memCheckpoint("thread-1", "cp-1", time.Now())
	replacement.Metadata = map[string]any{"replaced": true}
	require.NoError(t, store.Save(ctx, replacement))

	list, err := store.List(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0].Metadata["replaced"])
}

func TestMemoryStore_LoadLatest(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	_, err := store.LoadLatest(ctx, "thread-1")
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Now()
	for i := 0; i < 3; i++ {
		cp := memCheckpoint("thread-1", fmt.Sprintf("cp-%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, cp))
	}

	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-2", latest.ID)
}

func TestMemoryStore_ThreadsAreIsolated(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-a", "cp-a", time.Now())))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-b", "cp-b", time.Now())))

	_, err := store.Load(ctx, "thread-a", "cp-b")
	assert.ErrorIs(t, err, ErrNotFound)

	listA, err := store.List(ctx, "thread-a", 0)
	require.NoError(t, err)
	assert.Len(t, listA, 1)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "cp-1", time.Now())))
	require.NoError(t, store.Delete(ctx, "thread-1", "cp-1"))
	assert.ErrorIs(t, store.Delete(ctx, "thread-1", "cp-1"), ErrNotFound)
}

func TestMemoryStore_DeleteOlderThan(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "stale", now.Add(-time.Hour))))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "fresh", now)))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-2", "also-stale", now.Add(-time.Hour))))

	n, err := store.DeleteOlderThan(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// thread-2 emptied out entirely.
	_, err = store.LoadLatest(ctx, "thread-2")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", latest.ID)
}

func TestMemoryStore_HandsOutCopies(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	cp := memCheckpoint("thread-1", "cp-1", time.Now())
	cp.Metadata = map[string]any{"reason": "phase"}
	require.NoError(t, store.Save(ctx, cp))

	list, err := store.List(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Mutating a listed record must not reach the stored snapshot.
	list[0].State.Task.Title = "defaced"
	list[0].Metadata["reason"] = "tampered"

	loaded, err := store.Load(ctx, "thread-1", "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint me", loaded.State.Task.Title)
	assert.Equal(t, "phase", loaded.Metadata["reason"])

	// Loaded records are copies as well.
	loaded.State.Task.Title = "defaced again"
	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint me", latest.State.Task.Title)
}
