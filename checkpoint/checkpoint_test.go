package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/state"
	"github.com/BaSui01/taskflow/types"
)

func workflowState(threadID string) *types.State {
	return types.NewState(threadID, &types.TaskRecord{
		Title:    "checkpoint me",
		Status:   types.StatusPending,
		Priority: types.PriorityNormal,
	})
}

func TestManager_CreateAndLoad(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	m := NewManager(NewMemoryStore(10), DefaultConfig(), logger)
	ctx := context.Background()
	s := workflowState("thread-1")
	s.Metrics["confidence_score"] = 0.9

	id, err := m.CreateCheckpoint(ctx, "thread-1", s, map[string]any{"note": "first"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	restored, err := m.LoadCheckpoint(ctx, "thread-1", id)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", restored.ThreadID)
	assert.Equal(t, s.Task.Title, restored.Task.Title)
	assert.Equal(t, 0.9, restored.Metrics["confidence_score"])

	// Empty checkpoint id loads the latest.
	latest, err := m.LoadCheckpoint(ctx, "thread-1", "")
	require.NoError(t, err)
	assert.Equal(t, restored.ThreadID, latest.ThreadID)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Saves)
	assert.Equal(t, int64(2), stats.Loads)
	assert.Equal(t, int64(0), stats.Failures)
}

func TestManager_CheckpointIsSnapshot(t *testing.T) {
	m := NewManager(NewMemoryStore(10), DefaultConfig(), nil)
	ctx := context.Background()
	s := workflowState("thread-1")

	id, err := m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)

	// Mutating the live state after the snapshot must not leak into it.
	s.Task.Title = "changed after snapshot"
	s.Workflow.CurrentPhase = types.PhaseExecution

	restored, err := m.LoadCheckpoint(ctx, "thread-1", id)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint me", restored.Task.Title)
	assert.Equal(t, types.PhaseInitialization, restored.Workflow.CurrentPhase)
}

func TestManager_LoadMissing(t *testing.T) {
	m := NewManager(NewMemoryStore(10), DefaultConfig(), nil)
	_, err := m.LoadCheckpoint(context.Background(), "no-such-thread", "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), m.Stats().Failures)
}

func TestManager_ShouldCheckpoint(t *testing.T) {
	cfg := Config{MinInterval: time.Hour, MemoryCapacity: 10}
	m := NewManager(NewMemoryStore(10), cfg, nil)
	ctx := context.Background()
	s := workflowState("thread-1")

	// No prior checkpoint: always yes.
	assert.True(t, m.ShouldCheckpoint(ctx, "thread-1", s))

	_, err := m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)

	// Nothing changed and the interval has not elapsed.
	assert.False(t, m.ShouldCheckpoint(ctx, "thread-1", s))

	// Phase change forces a snapshot regardless of interval.
	require.NoError(t, state.UpdatePhase(s, types.PhaseAnalysis))
	assert.True(t, m.ShouldCheckpoint(ctx, "thread-1", s))

	_, err = m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)
	assert.False(t, m.ShouldCheckpoint(ctx, "thread-1", s))

	// Status change forces a snapshot too.
	require.NoError(t, state.UpdateTaskStatus(s, types.StatusAnalyzing))
	assert.True(t, m.ShouldCheckpoint(ctx, "thread-1", s))
}

func TestManager_PauseResume(t *testing.T) {
	m := NewManager(NewMemoryStore(10), DefaultConfig(), nil)
	ctx := context.Background()
	s := workflowState("thread-1")
	require.NoError(t, state.UpdatePhase(s, types.PhaseAnalysis))

	id, err := m.PauseExecution(ctx, "thread-1", s)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, m.IsPaused("thread-1"))

	resumed, err := m.ResumeExecution(ctx, "thread-1")
	require.NoError(t, err)
	assert.False(t, m.IsPaused("thread-1"))
	assert.Equal(t, types.PhaseAnalysis, resumed.Workflow.CurrentPhase)
	assert.Contains(t, resumed.Workflow.ExecutionMeta, "resumed_at")
}

func TestManager_RollbackClearsError(t *testing.T) {
	m := NewManager(NewMemoryStore(10), DefaultConfig(), nil)
	ctx := context.Background()
	s := workflowState("thread-1")
	require.NoError(t, state.UpdatePhase(s, types.PhaseAnalysis))

	id, err := m.CreateCheckpoint(ctx, "thread-1", s, nil)
	require.NoError(t, err)

	// Things go wrong after the checkpoint.
	require.NoError(t, state.UpdatePhase(s, types.PhaseErrorHandling))
	require.NoError(t, state.RecordError(s, types.ErrorRecord{
		Type: types.ErrCapability, Message: "boom", Node: "execution",
	}))

	restored, err := m.RollbackToCheckpoint(ctx, "thread-1", id)
	require.NoError(t, err)
	assert.Nil(t, restored.Error)
	assert.Equal(t, types.PhaseAnalysis, restored.Workflow.CurrentPhase)
	assert.Equal(t, id, restored.Workflow.ExecutionMeta["rollback_to_checkpoint"])
	assert.Contains(t, restored.Workflow.ExecutionMeta, "rolled_back_at")
}

func TestManager_CleanupOlderThan(t *testing.T) {
	store := NewMemoryStore(10)
	m := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	old := &Checkpoint{
		ID: "old", ThreadID: "thread-1",
		State:     workflowState("thread-1"),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, store.Save(ctx, old))
	_, err := m.CreateCheckpoint(ctx, "thread-1", workflowState("thread-1"), nil)
	require.NoError(t, err)

	n, err := m.CleanupOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := m.ListCheckpoints(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
