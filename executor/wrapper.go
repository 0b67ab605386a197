package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/state"
	"github.com/BaSui01/taskflow/types"
)

// AttemptState is one stage of the per-invocation retry state machine.
type AttemptState string

const (
	AttemptIdle       AttemptState = "idle"
	AttemptAttempting AttemptState = "attempting"
	AttemptRetrying   AttemptState = "retrying"
	AttemptSucceeded  AttemptState = "succeeded"
	AttemptExhausted  AttemptState = "exhausted"
)

// Config controls one wrapper instance.
type Config struct {
	// Timeout caps every individual attempt. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxRetries is the number of retries after the first attempt, so a
	// capability that always fails is called MaxRetries+1 times.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is slept between attempts. Retries are sequential, never
	// raced in parallel.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DefaultConfig returns the default execution contract.
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Stats tracks per-instance execution statistics.
type Stats struct {
	Executions    int64         `json:"executions"`
	Calls         int64         `json:"calls"`
	Successes     int64         `json:"successes"`
	Errors        int64         `json:"errors"`
	Retries       int64         `json:"retries"`
	Timeouts      int64         `json:"timeouts"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// Hook observes an execution. err is nil on success.
type Hook func(s *types.State, result map[string]any, err error)

// Wrapper runs one agent capability under the uniform execution contract.
type Wrapper struct {
	agentID     string
	capability  Capability
	config      Config
	transitions *state.TransitionManager
	logger      *zap.Logger

	mu           sync.Mutex
	collector    *metrics.Collector
	preHooks     []Hook
	postHooks    []Hook
	errorHooks   []Hook
	stats        Stats
	attemptState AttemptState
}

// NewWrapper creates an execution wrapper around a capability. transitions
// may be nil; exhaustion then moves the phase with the raw mutator instead
// of the managed edge check.
func NewWrapper(agentID string, capability Capability, config Config, transitions *state.TransitionManager, logger *zap.Logger) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout == 0 && config.MaxRetries == 0 && config.RetryDelay == 0 {
		config = DefaultConfig()
	}
	return &Wrapper{
		agentID:      agentID,
		capability:   capability,
		config:       config,
		transitions:  transitions,
		logger:       logger.With(zap.String("component", "executor"), zap.String("agent_id", agentID)),
		attemptState: AttemptIdle,
	}
}

// AgentID returns the wrapped agent's id.
func (w *Wrapper) AgentID() string {
	return w.agentID
}

// SetCollector attaches a metrics collector; retries and timeouts are then
// counted per agent. The engine wires this on registration.
func (w *Wrapper) SetCollector(c *metrics.Collector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.collector = c
}

// OnPre registers a hook run before the first attempt.
func (w *Wrapper) OnPre(h Hook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.preHooks = append(w.preHooks, h)
}

// OnPost registers a hook run after a successful execution.
func (w *Wrapper) OnPost(h Hook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.postHooks = append(w.postHooks, h)
}

// OnError registers a hook run after retry exhaustion.
func (w *Wrapper) OnError(h Hook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHooks = append(w.errorHooks, h)
}

// Execute runs the capability against the state and folds the outcome back
// in. It never returns an error: on exhaustion the returned state carries an
// ErrorRecord and sits in the error-handling phase.
func (w *Wrapper) Execute(ctx context.Context, s *types.State) *types.State {
	start := time.Now()
	payload := w.projectPayload(s)

	w.runHooks(w.snapshotHooks(&w.preHooks), s, nil, nil)

	var (
		result  map[string]any
		lastErr error
	)
	attempts := 0
	w.setAttemptState(AttemptAttempting)

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.setAttemptState(AttemptRetrying)
			w.mu.Lock()
			w.stats.Retries++
			collector := w.collector
			w.mu.Unlock()
			if collector != nil {
				collector.RecordAgentRetry(w.agentID)
			}
			if w.config.RetryDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(w.config.RetryDelay):
				}
			}
			w.setAttemptState(AttemptAttempting)
		}

		// Each attempt is independent: fresh deadline, same payload.
		attempts++
		w.mu.Lock()
		w.stats.Calls++
		w.mu.Unlock()

		result, lastErr = w.invoke(ctx, payload)
		if lastErr == nil {
			break
		}
		if types.GetErrorCode(lastErr) == types.ErrTimeout {
			w.mu.Lock()
			w.stats.Timeouts++
			collector := w.collector
			w.mu.Unlock()
			if collector != nil {
				collector.RecordAgentTimeout(w.agentID)
			}
		}
		w.logger.Warn("capability attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", w.config.MaxRetries+1),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			// The caller's context is gone; further attempts cannot succeed.
			break
		}
		if !types.IsRetryable(lastErr) {
			// Panics and errors the capability marked non-retryable are
			// deterministic; repeating the call cannot change the outcome.
			break
		}
	}

	duration := time.Since(start)
	w.mu.Lock()
	w.stats.Executions++
	w.stats.TotalDuration += duration
	w.stats.AvgDuration = w.stats.TotalDuration / time.Duration(w.stats.Executions)
	w.mu.Unlock()

	if lastErr == nil {
		w.setAttemptState(AttemptSucceeded)
		w.mu.Lock()
		w.stats.Successes++
		w.mu.Unlock()
		w.foldSuccess(s, result, attempts, duration)
		w.runHooks(w.snapshotHooks(&w.postHooks), s, result, nil)
		return s
	}

	w.setAttemptState(AttemptExhausted)
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
	w.foldFailure(s, lastErr, attempts)
	w.runHooks(w.snapshotHooks(&w.errorHooks), s, nil, lastErr)
	return s
}

// invoke runs a single attempt under the configured timeout. A panicking
// capability is converted to a capability error; nothing escapes.
func (w *Wrapper) invoke(ctx context.Context, payload map[string]any) (result map[string]any, err error) {
	actx := ctx
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: types.NewError(types.ErrCapability, fmt.Sprintf("capability panicked: %v", r))}
			}
		}()
		res, perr := w.capability.Process(actx, payload)
		done <- outcome{result: res, err: perr}
	}()

	select {
	case <-actx.Done():
		return nil, types.NewError(types.ErrTimeout, "capability timed out").WithCause(actx.Err()).WithRetryable(true)
	case o := <-done:
		if o.err != nil {
			// A capability returning *types.Error decides its own
			// retryability; plain errors are treated as transient.
			retryable := true
			var te *types.Error
			if errors.As(o.err, &te) {
				retryable = te.Retryable
			}
			return nil, types.NewError(types.ErrCapability, "capability failed").WithCause(o.err).WithRetryable(retryable)
		}
		return o.result, nil
	}
}

// projectPayload builds the read-only view of state a capability receives.
func (w *Wrapper) projectPayload(s *types.State) map[string]any {
	assigned := make([]map[string]any, 0)
	for _, id := range s.Coordination.AgentAssignments[w.agentID] {
		if st, ok := s.Task.SubTaskByID(id); ok {
			assigned = append(assigned, map[string]any{
				"id":          st.ID,
				"title":       st.Title,
				"description": st.Description,
				"type":        st.Type,
				"status":      string(st.Status),
				"input":       st.Input,
			})
		}
	}
	results := make(map[string]map[string]any, len(s.Workflow.AgentResults))
	for agent, res := range s.Workflow.AgentResults {
		results[agent] = res
	}
	return map[string]any{
		"thread_id": s.ThreadID,
		"agent_id":  w.agentID,
		"phase":     string(s.Workflow.CurrentPhase),
		"task": map[string]any{
			"id":           s.Task.ID,
			"title":        s.Task.Title,
			"description":  s.Task.Description,
			"type":         s.Task.Type,
			"status":       string(s.Task.Status),
			"requirements": s.Task.Requirements,
			"constraints":  s.Task.Constraints,
			"input":        s.Task.Input,
		},
		"subtasks":      assigned,
		"agent_results": results,
	}
}

func (w *Wrapper) foldSuccess(s *types.State, result map[string]any, attempts int, duration time.Duration) {
	if result == nil {
		result = make(map[string]any)
	}
	s.Workflow.AgentResults[w.agentID] = result
	state.ClearError(s)
	state.AddAgentMessage(s, types.AgentMessage{
		Sender:  w.agentID,
		Type:    types.MessageTypeResult,
		Content: fmt.Sprintf("completed in %d attempt(s)", attempts),
	})
	state.AddPerformanceMetric(s, fmt.Sprintf("%s_execution_seconds", w.agentID), duration.Seconds())
	s.Touch()

	w.logger.Debug("capability succeeded",
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration),
	)
}

func (w *Wrapper) foldFailure(s *types.State, lastErr error, attempts int) {
	state.RecordError(s, types.ErrorRecord{
		Type:       types.GetErrorCode(lastErr),
		Message:    lastErr.Error(),
		Agent:      w.agentID,
		Node:       string(s.Workflow.CurrentPhase),
		RetryCount: attempts - 1,
	})
	state.AddAgentMessage(s, types.AgentMessage{
		Sender:   w.agentID,
		Type:     types.MessageTypeError,
		Content:  fmt.Sprintf("exhausted %d attempt(s): %v", attempts, lastErr),
		Priority: types.PriorityHigh,
	})

	if w.transitions != nil {
		if ok, violations := w.transitions.Transition(s, types.PhaseErrorHandling, false); !ok {
			w.logger.Error("could not enter error handling",
				zap.Strings("violations", violations),
			)
			state.UpdatePhase(s, types.PhaseErrorHandling)
		}
	} else {
		state.UpdatePhase(s, types.PhaseErrorHandling)
	}

	w.logger.Error("capability exhausted retries",
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
}

func (w *Wrapper) snapshotHooks(src *[]Hook) []Hook {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Hook(nil), (*src)...)
}

func (w *Wrapper) runHooks(hooks []Hook, s *types.State, result map[string]any, err error) {
	for _, h := range hooks {
		h(s, result, err)
	}
}

func (w *Wrapper) setAttemptState(as AttemptState) {
	w.mu.Lock()
	w.attemptState = as
	w.mu.Unlock()
}

// AttemptState returns the state of the most recent invocation's retry
// machine.
func (w *Wrapper) AttemptState() AttemptState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attemptState
}

// Stats returns a copy of the wrapper's statistics.
func (w *Wrapper) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
