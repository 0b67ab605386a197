package types

import "time"

// WorkflowContext tracks where a workflow is in its lifecycle and what each
// phase produced.
type WorkflowContext struct {
	CurrentPhase Phase `json:"current_phase"`

	// CompletedPhases is append-only and order-preserving. It never contains
	// the current phase.
	CompletedPhases []Phase `json:"completed_phases"`

	// AgentResults maps agent id to that agent's latest folded result.
	AgentResults map[string]map[string]any `json:"agent_results"`

	// CoordinationPlan is the optional plan produced by the coordination
	// phase; its shape belongs to the coordinating capability.
	CoordinationPlan map[string]any `json:"coordination_plan,omitempty"`

	// ExecutionMeta is a free-form bag for engine bookkeeping
	// (iteration counters, resume/rollback stamps, timing notes).
	ExecutionMeta map[string]any `json:"execution_metadata"`

	PhaseStartedAt map[Phase]time.Time     `json:"phase_started_at"`
	PhaseDurations map[Phase]time.Duration `json:"phase_durations"`
}

// NewWorkflowContext creates a context positioned at the initialization phase.
func NewWorkflowContext() *WorkflowContext {
	now := time.Now()
	return &WorkflowContext{
		CurrentPhase:    PhaseInitialization,
		CompletedPhases: make([]Phase, 0, len(AllPhases)),
		AgentResults:    make(map[string]map[string]any),
		ExecutionMeta:   make(map[string]any),
		PhaseStartedAt:  map[Phase]time.Time{PhaseInitialization: now},
		PhaseDurations:  make(map[Phase]time.Duration),
	}
}

// PhaseCompleted reports whether the phase appears in CompletedPhases.
func (w *WorkflowContext) PhaseCompleted(p Phase) bool {
	for _, done := range w.CompletedPhases {
		if done == p {
			return true
		}
	}
	return false
}

// Conflict records a disagreement between agents that coordination must
// resolve before execution proceeds.
type Conflict struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Agents      []string  `json:"involved_agents"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// CollaborationSession tracks an active multi-agent working session.
type CollaborationSession struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Agents    []string  `json:"agents"`
	StartedAt time.Time `json:"started_at"`
}

// CoordinationState tracks which agents are active and what work each one
// holds. Every key in AgentAssignments must be present in ActiveAgents; the
// state validator enforces this.
type CoordinationState struct {
	ActiveAgents     []string               `json:"active_agents"`
	AgentAssignments map[string][]string    `json:"agent_assignments"`
	Conflicts        []Conflict             `json:"conflicts"`
	Sessions         []CollaborationSession `json:"collaboration_sessions"`
}

// NewCoordinationState creates an empty coordination state.
func NewCoordinationState() *CoordinationState {
	return &CoordinationState{
		ActiveAgents:     make([]string, 0),
		AgentAssignments: make(map[string][]string),
		Conflicts:        make([]Conflict, 0),
		Sessions:         make([]CollaborationSession, 0),
	}
}

// AgentActive reports whether the agent is in the active set.
func (c *CoordinationState) AgentActive(agent string) bool {
	for _, a := range c.ActiveAgents {
		if a == agent {
			return true
		}
	}
	return false
}
