// Package routing decides where a workflow goes next. Declarative conditions
// evaluate dotted field paths against the JSON snapshot of workflow state;
// rules pair a condition with a target and decision; routers order rules by
// priority; the engine owns named routers plus engine-global guard
// conditions and records evaluation history and metrics.
//
// Evaluation is pure: the same state and rule set always produce the same
// result. Counters and history are observability side channels and never
// feed back into decisions.
package routing
