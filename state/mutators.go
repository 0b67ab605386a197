package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/taskflow/types"
)

// UpdatePhase moves the workflow context to the given phase without edge
// checking. Most callers want TransitionManager.Transition instead; this is
// the raw primitive it is built on.
func UpdatePhase(s *types.State, phase types.Phase) error {
	if !phase.Valid() {
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown phase: %s", phase))
	}
	prior := s.Workflow.CurrentPhase
	if prior == phase {
		return nil
	}
	now := time.Now()
	if started, ok := s.Workflow.PhaseStartedAt[prior]; ok {
		s.Workflow.PhaseDurations[prior] = now.Sub(started)
	}
	s.Workflow.CurrentPhase = phase
	s.Workflow.PhaseStartedAt[phase] = now
	s.Touch()
	return nil
}

// UpdateTaskStatus sets the task status. Terminal statuses stamp CompletedAt.
func UpdateTaskStatus(s *types.State, status types.TaskStatus) error {
	if !status.Valid() {
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown status: %s", status))
	}
	now := time.Now()
	s.Task.Status = status
	s.Task.UpdatedAt = now
	if status == types.StatusInProgress && s.Task.StartedAt == nil {
		s.Task.StartedAt = &now
	}
	if status.Finished() && s.Task.CompletedAt == nil {
		s.Task.CompletedAt = &now
	}
	s.Touch()
	return nil
}

// AddAgentMessage appends a message to the audit log. The log is append-only;
// there is no mutator that edits or removes messages.
func AddAgentMessage(s *types.State, msg types.AgentMessage) error {
	if msg.Sender == "" {
		return types.NewError(types.ErrValidation, "message sender is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == "" {
		msg.Type = types.MessageTypeInfo
	}
	if msg.Priority == 0 {
		msg.Priority = types.PriorityNormal
	}
	s.Messages = append(s.Messages, msg)
	s.Touch()
	return nil
}

// AddPerformanceMetric records a named numeric observation.
func AddPerformanceMetric(s *types.State, name string, value float64) error {
	if name == "" {
		return types.NewError(types.ErrValidation, "metric name is required")
	}
	s.Metrics[name] = value
	s.Touch()
	return nil
}

// AssignAgent assigns a subtask to an agent, activating the agent if needed.
// The subtask must exist in the task record.
func AssignAgent(s *types.State, agent, subTaskID string) error {
	if agent == "" {
		return types.NewError(types.ErrValidation, "agent id is required")
	}
	st, ok := s.Task.SubTaskByID(subTaskID)
	if !ok {
		return types.NewError(types.ErrValidation, fmt.Sprintf("subtask not found: %s", subTaskID))
	}
	if !s.Coordination.AgentActive(agent) {
		s.Coordination.ActiveAgents = append(s.Coordination.ActiveAgents, agent)
	}
	for _, assigned := range s.Coordination.AgentAssignments[agent] {
		if assigned == subTaskID {
			return nil // already assigned, idempotent
		}
	}
	s.Coordination.AgentAssignments[agent] = append(s.Coordination.AgentAssignments[agent], subTaskID)
	st.Agent = agent
	st.UpdatedAt = time.Now()
	found := false
	for _, a := range s.Task.Agents {
		if a == agent {
			found = true
			break
		}
	}
	if !found {
		s.Task.Agents = append(s.Task.Agents, agent)
	}
	s.Touch()
	return nil
}

// AddConflict opens a conflict between agents.
func AddConflict(s *types.State, conflict types.Conflict) error {
	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now()
	}
	for _, existing := range s.Coordination.Conflicts {
		if existing.ID == conflict.ID {
			return types.NewError(types.ErrValidation, fmt.Sprintf("conflict already exists: %s", conflict.ID))
		}
	}
	s.Coordination.Conflicts = append(s.Coordination.Conflicts, conflict)
	s.Touch()
	return nil
}

// ResolveConflict marks an open conflict resolved.
func ResolveConflict(s *types.State, conflictID string) error {
	for i := range s.Coordination.Conflicts {
		c := &s.Coordination.Conflicts[i]
		if c.ID != conflictID {
			continue
		}
		if c.Resolved {
			return nil
		}
		now := time.Now()
		c.Resolved = true
		c.ResolvedAt = &now
		s.Touch()
		return nil
	}
	return types.NewError(types.ErrNotFound, fmt.Sprintf("conflict not found: %s", conflictID))
}

// RecordError attaches an error record to the state. Repeated calls for the
// same failure episode bump the retry counter instead of stacking records.
func RecordError(s *types.State, rec types.ErrorRecord) error {
	if rec.Type == "" {
		rec.Type = types.ErrInternalError
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	if s.Error != nil && s.Error.Node == rec.Node && s.Error.Agent == rec.Agent {
		rec.RetryCount = s.Error.RetryCount + 1
	}
	s.Error = &rec
	s.Touch()
	return nil
}

// ClearError removes the error record after recovery.
func ClearError(s *types.State) {
	if s.Error == nil {
		return
	}
	s.Error = nil
	s.Touch()
}

// Snapshot returns a deep copy of the state suitable for checkpointing.
// The original keeps its identity; the copy shares nothing with it.
func Snapshot(s *types.State) (*types.State, error) {
	return s.Clone()
}
