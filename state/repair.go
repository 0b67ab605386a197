package state

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/types"
)

// Repair makes defensive fixes to state arriving from storage: fills missing
// collection fields, nulls inconsistent timestamp pairs, and strips orphaned
// agent assignments. It returns the number of fixes applied.
func Repair(s *types.State, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	fixes := 0

	if s.Workflow == nil {
		s.Workflow = types.NewWorkflowContext()
		fixes++
	}
	if s.Coordination == nil {
		s.Coordination = types.NewCoordinationState()
		fixes++
	}
	if s.Messages == nil {
		s.Messages = make([]types.AgentMessage, 0)
		fixes++
	}
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
		fixes++
	}
	if s.Workflow.CompletedPhases == nil {
		s.Workflow.CompletedPhases = make([]types.Phase, 0)
		fixes++
	}
	if s.Workflow.AgentResults == nil {
		s.Workflow.AgentResults = make(map[string]map[string]any)
		fixes++
	}
	if s.Workflow.ExecutionMeta == nil {
		s.Workflow.ExecutionMeta = make(map[string]any)
		fixes++
	}
	if s.Workflow.PhaseStartedAt == nil {
		s.Workflow.PhaseStartedAt = make(map[types.Phase]time.Time)
		fixes++
	}
	if s.Workflow.PhaseDurations == nil {
		s.Workflow.PhaseDurations = make(map[types.Phase]time.Duration)
		fixes++
	}
	if s.Coordination.AgentAssignments == nil {
		s.Coordination.AgentAssignments = make(map[string][]string)
		fixes++
	}

	// Inconsistent timestamp pairs are nulled rather than guessed at.
	if s.Task != nil {
		if s.Task.StartedAt != nil && s.Task.CompletedAt != nil &&
			s.Task.CompletedAt.Before(*s.Task.StartedAt) {
			s.Task.StartedAt = nil
			s.Task.CompletedAt = nil
			fixes++
		}
		for i := range s.Task.SubTasks {
			st := &s.Task.SubTasks[i]
			if st.StartedAt != nil && st.CompletedAt != nil &&
				st.CompletedAt.Before(*st.StartedAt) {
				st.StartedAt = nil
				st.CompletedAt = nil
				fixes++
			}
		}
	}

	// Orphaned assignments: keys not in the active set are dropped.
	for agent := range s.Coordination.AgentAssignments {
		if !s.Coordination.AgentActive(agent) {
			delete(s.Coordination.AgentAssignments, agent)
			fixes++
		}
	}

	// The current phase must not linger in the completed set.
	for i, done := range s.Workflow.CompletedPhases {
		if done == s.Workflow.CurrentPhase {
			s.Workflow.CompletedPhases = append(
				s.Workflow.CompletedPhases[:i], s.Workflow.CompletedPhases[i+1:]...)
			fixes++
			break
		}
	}

	if fixes > 0 {
		logger.Debug("repaired state",
			zap.String("thread_id", s.ThreadID),
			zap.Int("fixes", fixes),
		)
		s.Touch()
	}
	return fixes
}
