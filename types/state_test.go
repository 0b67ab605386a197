package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClone_SharesNothing(t *testing.T) {
	s := NewState("thread-1", &TaskRecord{Title: "clone me", Status: StatusPending})
	s.Metrics["confidence_score"] = 0.8
	s.Task.SubTasks = []SubTask{{ID: "st-1", Title: "part", Status: StatusPending}}
	s.Coordination.ActiveAgents = append(s.Coordination.ActiveAgents, "worker")

	copied, err := s.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	copied.Metrics["confidence_score"] = 0.1
	copied.Task.SubTasks[0].Status = StatusCompleted
	copied.Coordination.ActiveAgents[0] = "other"

	if s.Metrics["confidence_score"] != 0.8 {
		t.Error("clone shares metrics with original")
	}
	if s.Task.SubTasks[0].Status != StatusPending {
		t.Error("clone shares subtasks with original")
	}
	if s.Coordination.ActiveAgents[0] != "worker" {
		t.Error("clone shares coordination with original")
	}
}

func TestStateJSONFieldNames(t *testing.T) {
	s := NewState("thread-1", &TaskRecord{Title: "wire shape", Status: StatusPending})
	data, err := s.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"thread_id", "task", "workflow_context", "coordination",
		"agent_messages", "performance_metrics", "created_at", "updated_at",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("serialized state missing %q", key)
		}
	}
	if _, ok := raw["error"]; ok {
		t.Error("nil error should be omitted from serialization")
	}
}

func TestPhaseValidAndTerminal(t *testing.T) {
	for _, p := range AllPhases {
		if !p.Valid() {
			t.Errorf("phase %s should be valid", p)
		}
	}
	if Phase("bogus").Valid() {
		t.Error("unknown phase should be invalid")
	}
	if !PhaseCompletion.Terminal() {
		t.Error("completion is terminal")
	}
	if PhaseErrorHandling.Terminal() {
		t.Error("error handling is not terminal")
	}
}

func TestErrorWrappingAndCodes(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrStorage, "checkpoint save failed").WithCause(cause).WithRetryable(true)

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if GetErrorCode(err) != ErrStorage {
		t.Errorf("code = %s, want STORAGE", GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Error("error should be retryable")
	}
	if GetErrorCode(cause) != "" {
		t.Error("plain errors carry no code")
	}
	if IsRetryable(cause) {
		t.Error("plain errors are not retryable")
	}
}

func TestReady_DependencyGating(t *testing.T) {
	task := &TaskRecord{
		Title: "deps",
		SubTasks: []SubTask{
			{ID: "a", Status: StatusCompleted},
			{ID: "b", Status: StatusPending, Dependencies: []string{"a"}},
			{ID: "c", Status: StatusPending, Dependencies: []string{"b"}},
			{ID: "d", Status: StatusPending, Dependencies: []string{"missing"}},
		},
	}

	b, _ := task.SubTaskByID("b")
	if !task.Ready(b) {
		t.Error("b depends only on completed a, should be ready")
	}
	c, _ := task.SubTaskByID("c")
	if task.Ready(c) {
		t.Error("c depends on pending b, should not be ready")
	}
	d, _ := task.SubTaskByID("d")
	if task.Ready(d) {
		t.Error("unknown dependency should block readiness")
	}
}
