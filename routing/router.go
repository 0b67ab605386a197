package routing

import (
	"fmt"
	"sort"
	"sync"
)

// Result is one routing outcome.
type Result struct {
	Target   string   `json:"target"`
	Decision Decision `json:"decision"`
	// Rule names the winning rule, empty for the default outcome.
	Rule string `json:"rule,omitempty"`
}

// Router holds a priority-ordered rule list and a default outcome returned
// when no rule matches.
type Router struct {
	name            string
	defaultTarget   string
	defaultDecision Decision

	mu    sync.RWMutex
	rules []*Rule
	nseq  int
}

// NewRouter creates a router with the given default target and decision.
func NewRouter(name, defaultTarget string, defaultDecision Decision) *Router {
	return &Router{
		name:            name,
		defaultTarget:   defaultTarget,
		defaultDecision: defaultDecision,
	}
}

// Name returns the router name.
func (r *Router) Name() string {
	return r.name
}

// AddRule registers a rule. Rules are re-sorted by priority descending;
// insertion order breaks ties.
func (r *Router) AddRule(rule *Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule.seq = r.nseq
	r.nseq++
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].Priority != r.rules[j].Priority {
			return r.rules[i].Priority > r.rules[j].Priority
		}
		return r.rules[i].seq < r.rules[j].seq
	})
}

// Rules returns the rules in evaluation order.
func (r *Router) Rules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Rule(nil), r.rules...)
}

// Evaluate checks rules in order and returns the first match, or the default
// outcome when nothing matches. Rule counters advance on every call.
func (r *Router) Evaluate(doc []byte) (Result, error) {
	r.mu.RLock()
	rules := append([]*Rule(nil), r.rules...)
	r.mu.RUnlock()

	for _, rule := range rules {
		rule.evaluated.Add(1)
		ok, err := rule.Condition.Evaluate(doc)
		if err != nil {
			return Result{}, fmt.Errorf("router %s, rule %s: %w", r.name, rule.Name, err)
		}
		if ok {
			rule.matched.Add(1)
			return Result{
				Target:   rule.Target,
				Decision: rule.Decision,
				Rule:     rule.Name,
			}, nil
		}
	}

	return Result{
		Target:   r.defaultTarget,
		Decision: r.defaultDecision,
	}, nil
}
