package routing

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/types"
)

// Record is one entry in the engine's evaluation history.
type Record struct {
	Router       string        `json:"router"`
	Result       Result        `json:"result"`
	GlobalFailed string        `json:"global_failed,omitempty"`
	At           time.Time     `json:"at"`
	Duration     time.Duration `json:"duration"`
}

// Metrics aggregates engine activity as plain counters for telemetry.
type Metrics struct {
	Evaluations      int64              `json:"evaluations"`
	GlobalRejections int64              `json:"global_rejections"`
	Errors           int64              `json:"errors"`
	Decisions        map[Decision]int64 `json:"decisions"`
}

// Engine owns named routers plus engine-global guard conditions. A failing
// global condition short-circuits to an error decision before any
// router-local rule runs.
type Engine struct {
	logger *zap.Logger

	mu         sync.RWMutex
	routers    map[string]*Router
	globals    []Condition
	history    []Record
	maxHistory int
	metrics    Metrics
}

// NewEngine creates a routing engine. historySize bounds the evaluation
// history ring; non-positive means 100.
func NewEngine(historySize int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historySize <= 0 {
		historySize = 100
	}
	return &Engine{
		logger:     logger.With(zap.String("component", "routing_engine")),
		routers:    make(map[string]*Router),
		maxHistory: historySize,
		metrics:    Metrics{Decisions: make(map[Decision]int64)},
	}
}

// RegisterRouter adds a named router. Registering the same name twice is an
// error.
func (e *Engine) RegisterRouter(r *Router) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.routers[r.Name()]; exists {
		return fmt.Errorf("router already registered: %s", r.Name())
	}
	e.routers[r.Name()] = r
	return nil
}

// Router returns the named router.
func (e *Engine) Router(name string) (*Router, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.routers[name]
	return r, ok
}

// AddGlobalCondition registers a guard checked before every router.
func (e *Engine) AddGlobalCondition(c Condition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals = append(e.globals, c)
}

// Evaluate routes the state through the named router. The state is
// serialized once; every condition sees the same snapshot, so identical
// state and rule sets always yield the identical result.
func (e *Engine) Evaluate(routerName string, s *types.State) (Result, error) {
	start := time.Now()

	doc, err := s.JSON()
	if err != nil {
		e.recordError()
		return Result{}, types.NewError(types.ErrRouting, "serialize state").WithCause(err)
	}

	e.mu.RLock()
	router, ok := e.routers[routerName]
	globals := append([]Condition(nil), e.globals...)
	e.mu.RUnlock()
	if !ok {
		e.recordError()
		return Result{}, types.NewError(types.ErrRouting, fmt.Sprintf("unknown router: %s", routerName))
	}

	for _, guard := range globals {
		holds, err := guard.Evaluate(doc)
		if err != nil {
			e.recordError()
			return Result{}, types.NewError(types.ErrRouting, "global condition failed to evaluate").WithCause(err)
		}
		if !holds {
			res := Result{
				Target:   string(types.PhaseErrorHandling),
				Decision: DecisionError,
			}
			e.record(Record{
				Router:       routerName,
				Result:       res,
				GlobalFailed: guard.String(),
				At:           start,
				Duration:     time.Since(start),
			}, true)
			e.logger.Warn("global routing condition rejected state",
				zap.String("router", routerName),
				zap.String("condition", guard.String()),
			)
			return res, nil
		}
	}

	res, err := router.Evaluate(doc)
	if err != nil {
		e.recordError()
		return Result{}, types.NewError(types.ErrRouting, "router evaluation").WithCause(err)
	}

	e.record(Record{
		Router:   routerName,
		Result:   res,
		At:       start,
		Duration: time.Since(start),
	}, false)

	e.logger.Debug("routed",
		zap.String("router", routerName),
		zap.String("target", res.Target),
		zap.String("decision", string(res.Decision)),
		zap.String("rule", res.Rule),
	)
	return res, nil
}

func (e *Engine) record(rec Record, globalRejection bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) >= e.maxHistory {
		e.history = e.history[1:]
	}
	e.history = append(e.history, rec)
	e.metrics.Evaluations++
	e.metrics.Decisions[rec.Result.Decision]++
	if globalRejection {
		e.metrics.GlobalRejections++
	}
}

func (e *Engine) recordError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.Evaluations++
	e.metrics.Errors++
}

// History returns a copy of the evaluation history, oldest first.
func (e *Engine) History() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Record(nil), e.history...)
}

// Stats returns a copy of the aggregate metrics.
func (e *Engine) Stats() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := Metrics{
		Evaluations:      e.metrics.Evaluations,
		GlobalRejections: e.metrics.GlobalRejections,
		Errors:           e.metrics.Errors,
		Decisions:        make(map[Decision]int64, len(e.metrics.Decisions)),
	}
	for k, v := range e.metrics.Decisions {
		out.Decisions[k] = v
	}
	return out
}
