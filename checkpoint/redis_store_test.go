package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "taskflow_test", 0, nil)
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	cp := memCheckpoint("thread-1", "cp-1", time.Now())
	cp.Metadata = map[string]any{"note": "redis"}
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "thread-1", "cp-1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, loaded.ID)
	assert.Equal(t, cp.ThreadID, loaded.ThreadID)
	assert.Equal(t, "redis", loaded.Metadata["note"])
	assert.Equal(t, cp.State.Task.Title, loaded.State.Task.Title)

	_, err = store.Load(ctx, "thread-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_LatestAndListOrder(t *testing.T) {
	store := newRedisStore(t)
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

	all, err := store.List(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRedisStore_Delete(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "cp-1", time.Now())))
	require.NoError(t, store.Delete(ctx, "thread-1", "cp-1"))

	_, err := store.Load(ctx, "thread-1", "cp-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "thread-1", "cp-1"), ErrNotFound)
}

func TestRedisStore_DeleteOlderThan(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "stale", now.Add(-2*time.Hour))))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-1", "fresh", now)))
	require.NoError(t, store.Save(ctx, memCheckpoint("thread-2", "old-too", now.Add(-3*time.Hour))))

	n, err := store.DeleteOlderThan(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := store.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", latest.ID)

	_, err = store.LoadLatest(ctx, "thread-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ManagerRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	m := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	s := workflowState("thread-1")
	s.Metrics["quality_score"] = 0.95

	id, err := m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)

	restored, err := m.LoadCheckpoint(ctx, "thread-1", id)
	require.NoError(t, err)
	assert.Equal(t, 0.95, restored.Metrics["quality_score"])
	assert.Equal(t, s.Workflow.CurrentPhase, restored.Workflow.CurrentPhase)
}
