package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the aggregate record a workflow thread operates on: the task, its
// workflow context, coordination state, message log, and metrics. One State
// belongs to exactly one workflow thread; concurrent writers are disallowed.
// Fan-out branches work on copies produced by Clone and merge at a single
// join point.
type State struct {
	ThreadID     string              `json:"thread_id"`
	Task         *TaskRecord         `json:"task"`
	Workflow     *WorkflowContext    `json:"workflow_context"`
	Coordination *CoordinationState  `json:"coordination"`
	Messages     []AgentMessage      `json:"agent_messages"`
	Metrics      map[string]float64  `json:"performance_metrics"`
	Error        *ErrorRecord        `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewState creates the aggregate for a fresh workflow thread: task status
// pending, phase initialization, empty coordination state.
func NewState(threadID string, task *TaskRecord) *State {
	now := time.Now()
	if task.ID == "" {
		task.ID = threadID
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	return &State{
		ThreadID:     threadID,
		Task:         task,
		Workflow:     NewWorkflowContext(),
		Coordination: NewCoordinationState(),
		Messages:     make([]AgentMessage, 0),
		Metrics:      make(map[string]float64),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy of the state via JSON round-trip. The aggregate
// is JSON-serializable by contract, so this is also the snapshot format the
// checkpoint stores persist.
func (s *State) Clone() (*State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &out, nil
}

// MustClone is Clone for states already known to be serializable, e.g. ones
// that round-tripped through a checkpoint store. Panics on marshal failure.
func (s *State) MustClone() *State {
	out, err := s.Clone()
	if err != nil {
		panic(err)
	}
	return out
}

// JSON returns the serialized snapshot of the state.
func (s *State) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// Touch advances UpdatedAt. Every mutator calls it.
func (s *State) Touch() {
	s.UpdatedAt = time.Now()
}

// Elapsed returns wall-clock time since the state was created.
func (s *State) Elapsed() time.Duration {
	return time.Since(s.CreatedAt)
}
