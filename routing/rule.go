package routing

import "sync/atomic"

// Decision tells the workflow engine what to do with the routed target.
type Decision string

const (
	// DecisionContinue proceeds to the target phase or agent.
	DecisionContinue Decision = "continue"
	// DecisionBranch forks into the target as a side path.
	DecisionBranch Decision = "branch"
	// DecisionEnd terminates the workflow successfully.
	DecisionEnd Decision = "end"
	// DecisionError routes into error handling.
	DecisionError Decision = "error"
)

// Rule pairs a condition with a routing outcome. Higher priority rules are
// checked first; rules with equal priority keep their insertion order.
type Rule struct {
	Name      string
	Condition Condition
	Target    string
	Decision  Decision
	Priority  int

	seq       int // insertion order, breaks priority ties
	evaluated atomic.Int64
	matched   atomic.Int64
}

// NewRule creates a routing rule.
func NewRule(name string, cond Condition, target string, decision Decision, priority int) *Rule {
	return &Rule{
		Name:      name,
		Condition: cond,
		Target:    target,
		Decision:  decision,
		Priority:  priority,
	}
}

// Evaluated returns how many times the rule's condition has been checked.
func (r *Rule) Evaluated() int64 {
	return r.evaluated.Load()
}

// Matched returns how many times the rule has been the winning match.
func (r *Rule) Matched() int64 {
	return r.matched.Load()
}
