package state

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/types"
)

// validTransitions is the fixed phase adjacency table. ErrorHandling is
// handled separately: it may return to any previously entered phase.
var validTransitions = map[types.Phase][]types.Phase{
	types.PhaseInitialization: {types.PhaseAnalysis, types.PhaseErrorHandling},
	types.PhaseAnalysis:       {types.PhaseDecomposition, types.PhaseCoordination, types.PhaseErrorHandling},
	types.PhaseDecomposition:  {types.PhaseCoordination, types.PhaseErrorHandling},
	types.PhaseCoordination:   {types.PhaseExecution, types.PhaseErrorHandling},
	types.PhaseExecution:      {types.PhaseReview, types.PhaseCompletion, types.PhaseErrorHandling},
	types.PhaseReview:         {types.PhaseCompletion, types.PhaseErrorHandling},
	types.PhaseCompletion:     {}, // terminal
}

// CanTransition checks whether the edge from -> to is legal for the given
// state. Legality is one table lookup except for recovery edges out of
// ErrorHandling, which depend on which phases the workflow has entered.
func CanTransition(s *types.State, from, to types.Phase) bool {
	if from == types.PhaseErrorHandling {
		if to == types.PhaseErrorHandling {
			return false
		}
		_, entered := s.Workflow.PhaseStartedAt[to]
		return entered || s.Workflow.PhaseCompleted(to)
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法阶段转换错误
type ErrInvalidTransition struct {
	From types.Phase
	To   types.Phase
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid phase transition: %s -> %s", e.From, e.To)
}

// Hook runs around a phase transition. Before-hooks may veto the transition
// by returning an error; after-hook errors are logged and ignored.
type Hook func(s *types.State, from, to types.Phase) error

// TransitionManager enforces the phase graph and runs registered hooks.
type TransitionManager struct {
	validator *Validator
	logger    *zap.Logger

	mu          sync.RWMutex
	beforeHooks map[types.Phase][]Hook
	afterHooks  map[types.Phase][]Hook
}

// NewTransitionManager creates a transition manager. validator may be nil,
// in which case Transition skips consistency reporting.
func NewTransitionManager(validator *Validator, logger *zap.Logger) *TransitionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionManager{
		validator:   validator,
		logger:      logger.With(zap.String("component", "transition_manager")),
		beforeHooks: make(map[types.Phase][]Hook),
		afterHooks:  make(map[types.Phase][]Hook),
	}
}

// OnEnter registers a before-hook for transitions into the target phase.
func (m *TransitionManager) OnEnter(target types.Phase, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeHooks[target] = append(m.beforeHooks[target], h)
}

// AfterEnter registers an after-hook for transitions into the target phase.
func (m *TransitionManager) AfterEnter(target types.Phase, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterHooks[target] = append(m.afterHooks[target], h)
}

// Transition moves the state to the target phase. Illegal edges are rejected
// unless force is set; the state is left untouched on rejection. On success
// the prior phase is appended to completed_phases (idempotent), its duration
// is recorded, and before/after hooks for the target run.
func (m *TransitionManager) Transition(s *types.State, target types.Phase, force bool) (bool, []string) {
	var violations []string

	if !target.Valid() {
		return false, []string{fmt.Sprintf("unknown phase: %s", target)}
	}

	from := s.Workflow.CurrentPhase
	if from == target {
		// No edge to take. Repeating a transition into the current phase is
		// a no-op success so retried callers stay idempotent.
		return true, nil
	}

	if !CanTransition(s, from, target) {
		violations = append(violations, ErrInvalidTransition{From: from, To: target}.Error())
		if !force {
			m.logger.Warn("transition rejected",
				zap.String("from", from.String()),
				zap.String("to", target.String()),
			)
			return false, violations
		}
		m.logger.Info("transition forced",
			zap.String("from", from.String()),
			zap.String("to", target.String()),
		)
	}

	m.mu.RLock()
	before := append([]Hook(nil), m.beforeHooks[target]...)
	after := append([]Hook(nil), m.afterHooks[target]...)
	m.mu.RUnlock()

	for _, h := range before {
		if err := h(s, from, target); err != nil {
			violations = append(violations, fmt.Sprintf("before-hook rejected %s: %v", target, err))
			if !force {
				return false, violations
			}
		}
	}

	now := time.Now()
	if started, ok := s.Workflow.PhaseStartedAt[from]; ok {
		s.Workflow.PhaseDurations[from] = now.Sub(started)
	}
	if !s.Workflow.PhaseCompleted(from) {
		s.Workflow.CompletedPhases = append(s.Workflow.CompletedPhases, from)
	}
	// Re-entering a phase (recovery path) must not leave it in the completed
	// set: completed_phases never contains the current phase.
	for i, done := range s.Workflow.CompletedPhases {
		if done == target {
			s.Workflow.CompletedPhases = append(
				s.Workflow.CompletedPhases[:i], s.Workflow.CompletedPhases[i+1:]...)
			break
		}
	}
	s.Workflow.CurrentPhase = target
	s.Workflow.PhaseStartedAt[target] = now
	s.Touch()

	for _, h := range after {
		if err := h(s, from, target); err != nil {
			m.logger.Warn("after-hook failed",
				zap.String("phase", target.String()),
				zap.Error(err),
			)
		}
	}

	if m.validator != nil {
		if ok, vs := m.validator.Validate(s); !ok {
			violations = append(violations, vs...)
		}
	}

	m.logger.Debug("phase transition",
		zap.String("from", from.String()),
		zap.String("to", target.String()),
		zap.Bool("forced", force),
	)

	return true, violations
}
