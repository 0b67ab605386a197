package state

import (
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/taskflow/types"
)

func testLimits() Limits {
	return Limits{MaxRetries: 3, MaxMessages: 10, MaxElapsed: 30 * time.Minute}
}

func TestValidate_CleanStatePasses(t *testing.T) {
	v := NewValidator(testLimits())
	ok, violations := v.Validate(newTestState())
	if !ok {
		t.Errorf("fresh state should validate, got %v", violations)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *types.State)
		want   string
	}{
		{
			name:   "missing thread id",
			mutate: func(s *types.State) { s.ThreadID = "" },
			want:   "thread_id",
		},
		{
			name:   "missing task title",
			mutate: func(s *types.State) { s.Task.Title = "" },
			want:   "title",
		},
		{
			name:   "unknown status",
			mutate: func(s *types.State) { s.Task.Status = "bogus" },
			want:   "unknown task status",
		},
		{
			name: "status incompatible with phase",
			mutate: func(s *types.State) {
				s.Workflow.CurrentPhase = types.PhaseExecution
				s.Task.Status = types.StatusPending
			},
			want: "incompatible",
		},
		{
			name: "current phase in completed set",
			mutate: func(s *types.State) {
				s.Workflow.CompletedPhases = append(s.Workflow.CompletedPhases, s.Workflow.CurrentPhase)
			},
			want: "completed_phases contains current phase",
		},
		{
			name: "retry ceiling",
			mutate: func(s *types.State) {
				s.Error = &types.ErrorRecord{Type: types.ErrCapability, RetryCount: 4}
			},
			want: "retry count",
		},
		{
			name: "message ceiling",
			mutate: func(s *types.State) {
				for i := 0; i < 11; i++ {
					s.Messages = append(s.Messages, types.AgentMessage{Sender: "a"})
				}
			},
			want: "message count",
		},
		{
			name: "updated before created",
			mutate: func(s *types.State) {
				s.UpdatedAt = s.CreatedAt.Add(-time.Minute)
			},
			want: "updated_at precedes created_at",
		},
		{
			name: "subtask unknown dependency",
			mutate: func(s *types.State) {
				s.Task.SubTasks = []types.SubTask{
					{ID: "st-1", Status: types.StatusPending, Dependencies: []string{"missing"}},
				}
			},
			want: "unknown subtask",
		},
		{
			name: "orphaned assignment",
			mutate: func(s *types.State) {
				s.Coordination.AgentAssignments["ghost"] = []string{"st-1"}
			},
			want: "not active",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestState()
			tc.mutate(s)
			v := NewValidator(testLimits())
			ok, violations := v.Validate(s)
			if ok {
				t.Fatalf("expected violation containing %q, state validated clean", tc.want)
			}
			found := false
			for _, violation := range violations {
				if strings.Contains(violation, tc.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("violations %v missing %q", violations, tc.want)
			}
		})
	}
}

func TestValidate_ErrorHandlingAcceptsAnyStatus(t *testing.T) {
	v := NewValidator(testLimits())
	for _, status := range []types.TaskStatus{
		types.StatusPending, types.StatusInProgress, types.StatusFailed,
	} {
		s := newTestState()
		s.Workflow.CurrentPhase = types.PhaseErrorHandling
		s.Task.Status = status
		if ok, violations := v.Validate(s); !ok {
			t.Errorf("status %s in error handling should validate, got %v", status, violations)
		}
	}
}

func TestRepair_FillsNilCollections(t *testing.T) {
	s := newTestState()
	s.Messages = nil
	s.Metrics = nil
	s.Workflow.AgentResults = nil
	s.Coordination.AgentAssignments = nil

	fixes := Repair(s, nil)
	if fixes != 4 {
		t.Errorf("fixes = %d, want 4", fixes)
	}
	if s.Messages == nil || s.Metrics == nil ||
		s.Workflow.AgentResults == nil || s.Coordination.AgentAssignments == nil {
		t.Error("repair left nil collections")
	}
}

func TestRepair_NullsInconsistentTimestamps(t *testing.T) {
	s := newTestState()
	started := time.Now()
	completed := started.Add(-time.Hour)
	s.Task.StartedAt = &started
	s.Task.CompletedAt = &completed

	if fixes := Repair(s, nil); fixes != 1 {
		t.Errorf("fixes = %d, want 1", fixes)
	}
	if s.Task.StartedAt != nil || s.Task.CompletedAt != nil {
		t.Error("inconsistent timestamps should be nulled")
	}
}

func TestRepair_StripsOrphanedAssignments(t *testing.T) {
	s := newTestState()
	s.Coordination.AgentAssignments["ghost"] = []string{"st-1"}

	if fixes := Repair(s, nil); fixes != 1 {
		t.Errorf("fixes = %d, want 1", fixes)
	}
	if _, ok := s.Coordination.AgentAssignments["ghost"]; ok {
		t.Error("orphaned assignment should be removed")
	}
}

func TestRepair_CleanStateUntouched(t *testing.T) {
	s := newTestState()
	before := s.UpdatedAt
	if fixes := Repair(s, nil); fixes != 0 {
		t.Errorf("clean state repaired %d times", fixes)
	}
	if !s.UpdatedAt.Equal(before) {
		t.Error("repair with no fixes must not touch the state")
	}
}
