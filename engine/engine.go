package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/checkpoint"
	"github.com/BaSui01/taskflow/executor"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/routing"
	"github.com/BaSui01/taskflow/state"
	"github.com/BaSui01/taskflow/types"
)

// Status is the engine lifecycle status.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Config controls one workflow engine.
type Config struct {
	// Name identifies the engine in logs and metrics.
	Name string `yaml:"name" json:"name"`
	// Router is the routing.Engine router consulted each iteration.
	Router string `yaml:"router" json:"router"`
	// MaxIterations caps routing loop iterations per execution.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// Timeout caps wall-clock time per execution. Zero means no cap.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxParallel bounds concurrent agent fan-out. Zero means unbounded.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "taskflow",
		Router:        "workflow",
		MaxIterations: 50,
		Timeout:       10 * time.Minute,
		MaxParallel:   4,
	}
}

// Stats aggregates engine activity across executions.
type Stats struct {
	Executions      int64         `json:"executions"`
	Completed       int64         `json:"completed"`
	Failed          int64         `json:"failed"`
	Paused          int64         `json:"paused"`
	Iterations      int64         `json:"iterations"`
	AgentExecutions int64         `json:"agent_executions"`
	TotalDuration   time.Duration `json:"total_duration"`
}

// Engine drives workflow threads to completion.
type Engine struct {
	config      Config
	logger      *zap.Logger
	collector   *metrics.Collector
	routing     *routing.Engine
	transitions *state.TransitionManager
	checkpoints *checkpoint.Manager

	mu       sync.RWMutex
	status   Status
	compiled bool
	agents   map[string]*executor.Wrapper
	stats    Stats

	stop atomic.Bool
}

// New creates a workflow engine. checkpoints and collector may be nil; the
// engine then runs without snapshots or Prometheus metrics respectively.
func New(config Config, router *routing.Engine, transitions *state.TransitionManager, checkpoints *checkpoint.Manager, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}
	if config.Router == "" {
		config.Router = DefaultConfig().Router
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	return &Engine{
		config:      config,
		logger:      logger.With(zap.String("component", "workflow_engine"), zap.String("engine", config.Name)),
		collector:   collector,
		routing:     router,
		transitions: transitions,
		checkpoints: checkpoints,
		status:      StatusCreated,
		agents:      make(map[string]*executor.Wrapper),
	}
}

// RegisterAgent binds an agent wrapper to its routing target name. Agents
// cannot be registered after Compile.
func (e *Engine) RegisterAgent(target string, w *executor.Wrapper) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return fmt.Errorf("engine %s is compiled, agent registration is frozen", e.config.Name)
	}
	if _, exists := e.agents[target]; exists {
		return fmt.Errorf("agent already registered: %s", target)
	}
	if e.collector != nil {
		w.SetCollector(e.collector)
	}
	e.agents[target] = w
	return nil
}

// Compile freezes the phase/agent graph. After Compile the engine accepts no
// further agent registration and Execute may be called.
func (e *Engine) Compile() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compiled {
		return nil
	}
	if _, ok := e.routing.Router(e.config.Router); !ok {
		return fmt.Errorf("router not registered: %s", e.config.Router)
	}
	e.compiled = true
	e.logger.Info("engine compiled",
		zap.Int("agents", len(e.agents)),
		zap.String("router", e.config.Router),
	)
	return nil
}

// Status returns the engine status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Stats returns a copy of the aggregate statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Stop requests cooperative cancellation. The running execution observes the
// flag at its next phase boundary, checkpoints if a manager is configured,
// and returns a paused state.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Execute builds the initial state from the input and drives the routing
// loop until a terminal phase, a ceiling, or cancellation. It always returns
// a valid state; unrecoverable conditions yield a failed state with a
// populated error record, not an error.
func (e *Engine) Execute(ctx context.Context, input map[string]any) (*types.State, error) {
	e.mu.Lock()
	if !e.compiled {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine %s: Execute before Compile", e.config.Name)
	}
	e.status = StatusRunning
	e.stats.Executions++
	e.mu.Unlock()
	e.stop.Store(false)

	s := types.NewState(uuid.NewString(), taskFromInput(input))
	return e.run(ctx, s)
}

// Resume continues a previously paused thread from its latest checkpoint.
func (e *Engine) Resume(ctx context.Context, threadID string) (*types.State, error) {
	if e.checkpoints == nil {
		return nil, fmt.Errorf("engine %s has no checkpoint manager", e.config.Name)
	}
	s, err := e.checkpoints.ResumeExecution(ctx, threadID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if !e.compiled {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine %s: Resume before Compile", e.config.Name)
	}
	e.status = StatusRunning
	e.stats.Executions++
	e.mu.Unlock()
	e.stop.Store(false)
	return e.run(ctx, s)
}

func (e *Engine) run(ctx context.Context, s *types.State) (*types.State, error) {
	start := time.Now()
	var deadline time.Time
	if e.config.Timeout > 0 {
		deadline = start.Add(e.config.Timeout)
	}

	iterations := 0
	defer func() {
		e.mu.Lock()
		e.stats.Iterations += int64(iterations)
		e.stats.TotalDuration += time.Since(start)
		e.mu.Unlock()
	}()

	e.logger.Info("workflow started",
		zap.String("thread_id", s.ThreadID),
		zap.String("task", s.Task.Title),
	)

	for {
		// Cooperative cancellation and ceilings, checked at phase boundaries.
		if e.stop.Load() {
			return e.pause(ctx, s, start, iterations)
		}
		select {
		case <-ctx.Done():
			return e.fail(s, start, iterations, types.ErrTimeout, "context cancelled: "+ctx.Err().Error()), nil
		default:
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return e.fail(s, start, iterations, types.ErrTimeout,
				fmt.Sprintf("workflow exceeded %s wall-clock limit", e.config.Timeout)), nil
		}
		if iterations >= e.config.MaxIterations {
			return e.fail(s, start, iterations, types.ErrInternalError,
				fmt.Sprintf("workflow exceeded %d iterations", e.config.MaxIterations)), nil
		}

		e.maybeCheckpoint(ctx, s)

		if s.Workflow.CurrentPhase.Terminal() {
			return e.complete(s, start, iterations), nil
		}

		res, err := e.routing.Evaluate(e.config.Router, s)
		if err != nil {
			return e.fail(s, start, iterations, types.GetErrorCode(err), err.Error()), nil
		}
		if e.collector != nil {
			e.collector.RecordRoutingEvaluation(e.config.Router, string(res.Decision))
		}
		iterations++

		switch res.Decision {
		case routing.DecisionEnd:
			if ok, _ := e.transitions.Transition(s, types.PhaseCompletion, false); !ok {
				// End decided from a phase without a completion edge; force
				// the edge rather than looping forever.
				e.transitions.Transition(s, types.PhaseCompletion, true)
			}

		case routing.DecisionError:
			if s.Workflow.CurrentPhase == types.PhaseErrorHandling {
				return e.fail(s, start, iterations, types.ErrRouting,
					"routing demands error handling from error handling"), nil
			}
			state.RecordError(s, types.ErrorRecord{
				Type:    types.ErrRouting,
				Message: fmt.Sprintf("routed to error handling by %s", res.Rule),
				Node:    string(s.Workflow.CurrentPhase),
			})
			e.transitions.Transition(s, types.PhaseErrorHandling, false)

		case routing.DecisionContinue, routing.DecisionBranch:
			if err := e.step(ctx, s, res); err != nil {
				return e.fail(s, start, iterations, types.GetErrorCode(err), err.Error()), nil
			}

		default:
			return e.fail(s, start, iterations, types.ErrRouting,
				fmt.Sprintf("unknown routing decision: %s", res.Decision)), nil
		}
	}
}

// step resolves a continue/branch target to either an agent execution or a
// phase transition. A target naming both a registered agent and a phase
// (agents bound to the phase they serve) aligns the phase first, then runs
// the agent, so routers can address phase-bound agents by phase name.
func (e *Engine) step(ctx context.Context, s *types.State, res routing.Result) error {
	e.mu.RLock()
	wrapper, isAgent := e.agents[res.Target]
	e.mu.RUnlock()

	if isAgent {
		if p := types.Phase(res.Target); p.Valid() && s.Workflow.CurrentPhase != p {
			from := s.Workflow.CurrentPhase
			if ok, violations := e.transitions.Transition(s, p, false); !ok {
				e.logger.Warn("could not align phase for agent target",
					zap.String("target", res.Target),
					zap.Strings("violations", violations),
				)
			} else if e.collector != nil {
				e.collector.RecordPhaseTransition(string(from), res.Target, s.Workflow.PhaseDurations[from])
			}
		}

		e.mu.Lock()
		e.stats.AgentExecutions++
		e.mu.Unlock()

		wrapper.Execute(ctx, s)
		if e.collector != nil {
			outcome := "success"
			if s.Error != nil {
				outcome = "error"
			}
			e.collector.RecordAgentExecution(wrapper.AgentID(), outcome)
		}
		return nil
	}

	target := types.Phase(res.Target)
	if !target.Valid() {
		return types.NewError(types.ErrRouting, fmt.Sprintf("target %q is neither a registered agent nor a phase", res.Target))
	}
	from := s.Workflow.CurrentPhase
	ok, violations := e.transitions.Transition(s, target, false)
	if !ok {
		return types.NewError(types.ErrTransition,
			fmt.Sprintf("transition %s -> %s rejected: %v", from, target, violations))
	}
	if e.collector != nil {
		e.collector.RecordPhaseTransition(string(from), string(target), s.Workflow.PhaseDurations[from])
	}
	if target == types.PhaseExecution {
		// Entering execution drains ready dependency-free subtasks across
		// their assigned agents before the next routing evaluation.
		if err := e.FanOut(ctx, s); err != nil {
			return types.NewError(types.ErrInternalError, "subtask fan-out").WithCause(err)
		}
	}
	return nil
}

func (e *Engine) maybeCheckpoint(ctx context.Context, s *types.State) {
	if e.checkpoints == nil {
		return
	}
	if !e.checkpoints.ShouldCheckpoint(ctx, s.ThreadID, s) {
		return
	}
	if _, err := e.checkpoints.CreateCheckpoint(ctx, s.ThreadID, s, nil); err != nil {
		// Checkpoint failures are counted, not fatal.
		if e.collector != nil {
			e.collector.RecordCheckpointFailure()
		}
		e.logger.Warn("checkpoint failed",
			zap.String("thread_id", s.ThreadID),
			zap.Error(err),
		)
		return
	}
	if e.collector != nil {
		e.collector.RecordCheckpointOp("create")
	}
}

func (e *Engine) complete(s *types.State, start time.Time, iterations int) *types.State {
	if !s.Task.Status.Finished() {
		state.UpdateTaskStatus(s, types.StatusCompleted)
	}
	stampMeta(s, iterations)

	e.mu.Lock()
	e.status = StatusCompleted
	e.stats.Completed++
	e.mu.Unlock()
	if e.collector != nil {
		e.collector.RecordWorkflowExecution(string(StatusCompleted), time.Since(start), iterations)
	}
	e.logger.Info("workflow completed",
		zap.String("thread_id", s.ThreadID),
		zap.Int("iterations", iterations),
		zap.Duration("duration", time.Since(start)),
	)
	return s
}

func (e *Engine) fail(s *types.State, start time.Time, iterations int, code types.ErrorCode, msg string) *types.State {
	if code == "" {
		code = types.ErrInternalError
	}
	state.RecordError(s, types.ErrorRecord{
		Type:    code,
		Message: msg,
		Node:    string(s.Workflow.CurrentPhase),
	})
	state.UpdateTaskStatus(s, types.StatusFailed)
	stampMeta(s, iterations)

	e.mu.Lock()
	e.status = StatusFailed
	e.stats.Failed++
	e.mu.Unlock()
	if e.collector != nil {
		e.collector.RecordWorkflowExecution(string(StatusFailed), time.Since(start), iterations)
	}
	e.logger.Error("workflow failed",
		zap.String("thread_id", s.ThreadID),
		zap.String("code", string(code)),
		zap.String("reason", msg),
		zap.Int("iterations", iterations),
	)
	return s
}

func (e *Engine) pause(ctx context.Context, s *types.State, start time.Time, iterations int) (*types.State, error) {
	stampMeta(s, iterations)
	if e.checkpoints != nil {
		if _, err := e.checkpoints.PauseExecution(ctx, s.ThreadID, s); err != nil {
			e.logger.Warn("pause checkpoint failed", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.status = StatusPaused
	e.stats.Paused++
	e.mu.Unlock()
	if e.collector != nil {
		e.collector.RecordWorkflowExecution(string(StatusPaused), time.Since(start), iterations)
	}
	e.logger.Info("workflow paused",
		zap.String("thread_id", s.ThreadID),
		zap.Int("iterations", iterations),
	)
	return s, nil
}

func stampMeta(s *types.State, iterations int) {
	s.Workflow.ExecutionMeta["iterations"] = iterations
	s.Workflow.ExecutionMeta["finished_at"] = time.Now().Format(time.RFC3339Nano)
	s.Touch()
}

// taskFromInput builds the initial task record from the untyped execution
// input. Unknown keys land in the task input payload untouched.
func taskFromInput(input map[string]any) *types.TaskRecord {
	task := &types.TaskRecord{
		Status:   types.StatusPending,
		Priority: types.PriorityNormal,
		Input:    make(map[string]any),
	}
	for k, v := range input {
		switch k {
		case "title":
			if title, ok := v.(string); ok {
				task.Title = title
				continue
			}
		case "description":
			if desc, ok := v.(string); ok {
				task.Description = desc
				continue
			}
		case "type":
			if typ, ok := v.(string); ok {
				task.Type = typ
				continue
			}
		}
		task.Input[k] = v
	}
	if task.Title == "" {
		task.Title = "untitled task"
	}
	return task
}
