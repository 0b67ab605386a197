package state

import (
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/types"
)

// Limits are the validator-enforced ceilings. They are hard caps, not
// advisory: a state beyond any of them fails validation.
type Limits struct {
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	MaxMessages int           `yaml:"max_messages" json:"max_messages"`
	MaxElapsed  time.Duration `yaml:"max_elapsed" json:"max_elapsed"`
}

// phaseStatuses maps each phase to the task statuses compatible with it.
// An empty set means any status is acceptable (error handling can be entered
// from anywhere, so it constrains nothing).
var phaseStatuses = map[types.Phase][]types.TaskStatus{
	types.PhaseInitialization: {types.StatusPending},
	types.PhaseAnalysis:       {types.StatusPending, types.StatusAnalyzing},
	types.PhaseDecomposition:  {types.StatusAnalyzing, types.StatusDecomposed},
	types.PhaseCoordination:   {types.StatusDecomposed, types.StatusInProgress},
	types.PhaseExecution:      {types.StatusInProgress},
	types.PhaseReview:         {types.StatusInProgress, types.StatusReviewing},
	types.PhaseCompletion:     {types.StatusReviewing, types.StatusCompleted},
	types.PhaseErrorHandling:  {},
}

// Validator checks workflow state for schema and cross-entity consistency.
type Validator struct {
	limits Limits
}

// NewValidator creates a validator with the given ceilings.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Validate returns ok and the list of violations found. It never mutates the
// state; use Repair for that.
func (v *Validator) Validate(s *types.State) (bool, []string) {
	var violations []string

	// Required fields.
	if s.ThreadID == "" {
		violations = append(violations, "thread_id is required")
	}
	if s.Task == nil {
		violations = append(violations, "task is required")
	}
	if s.Workflow == nil {
		violations = append(violations, "workflow_context is required")
	}
	if s.Coordination == nil {
		violations = append(violations, "coordination is required")
	}
	if s.Task == nil || s.Workflow == nil || s.Coordination == nil {
		return false, violations
	}
	if s.Task.Title == "" {
		violations = append(violations, "task title is required")
	}
	if !s.Task.Status.Valid() {
		violations = append(violations, fmt.Sprintf("unknown task status: %s", s.Task.Status))
	}
	if !s.Workflow.CurrentPhase.Valid() {
		violations = append(violations, fmt.Sprintf("unknown phase: %s", s.Workflow.CurrentPhase))
	}

	// Phase/status compatibility.
	if allowed, ok := phaseStatuses[s.Workflow.CurrentPhase]; ok && len(allowed) > 0 {
		match := false
		for _, status := range allowed {
			if s.Task.Status == status {
				match = true
				break
			}
		}
		if !match {
			violations = append(violations, fmt.Sprintf(
				"status %s incompatible with phase %s", s.Task.Status, s.Workflow.CurrentPhase))
		}
	}

	// completed_phases never contains the current phase.
	if s.Workflow.PhaseCompleted(s.Workflow.CurrentPhase) {
		violations = append(violations, fmt.Sprintf(
			"completed_phases contains current phase %s", s.Workflow.CurrentPhase))
	}

	// Ceilings.
	if s.Error != nil && v.limits.MaxRetries > 0 && s.Error.RetryCount > v.limits.MaxRetries {
		violations = append(violations, fmt.Sprintf(
			"retry count %d exceeds ceiling %d", s.Error.RetryCount, v.limits.MaxRetries))
	}
	if v.limits.MaxMessages > 0 && len(s.Messages) > v.limits.MaxMessages {
		violations = append(violations, fmt.Sprintf(
			"message count %d exceeds ceiling %d", len(s.Messages), v.limits.MaxMessages))
	}
	if v.limits.MaxElapsed > 0 && s.Elapsed() > v.limits.MaxElapsed {
		violations = append(violations, fmt.Sprintf(
			"elapsed time exceeds ceiling %s", v.limits.MaxElapsed))
	}

	// Timestamp ordering.
	if s.UpdatedAt.Before(s.CreatedAt) {
		violations = append(violations, "updated_at precedes created_at")
	}
	if s.Task.StartedAt != nil && s.Task.CompletedAt != nil &&
		s.Task.CompletedAt.Before(*s.Task.StartedAt) {
		violations = append(violations, "task completed_at precedes started_at")
	}
	for i := range s.Task.SubTasks {
		st := &s.Task.SubTasks[i]
		if st.StartedAt != nil && st.CompletedAt != nil && st.CompletedAt.Before(*st.StartedAt) {
			violations = append(violations, fmt.Sprintf(
				"subtask %s completed_at precedes started_at", st.ID))
		}
		for _, dep := range st.Dependencies {
			if _, ok := s.Task.SubTaskByID(dep); !ok {
				violations = append(violations, fmt.Sprintf(
					"subtask %s depends on unknown subtask %s", st.ID, dep))
			}
		}
	}

	// Agent assignment consistency: every assignment key must be active.
	for agent := range s.Coordination.AgentAssignments {
		if !s.Coordination.AgentActive(agent) {
			violations = append(violations, fmt.Sprintf(
				"agent %s has assignments but is not active", agent))
		}
	}

	return len(violations) == 0, violations
}
