// Package engine composes the orchestration core: it drives a workflow
// thread phase-by-phase, asking the routing engine where to go next,
// executing agents through their wrappers, folding results back through the
// state mutators, and checkpointing per policy.
//
// One engine executes one workflow thread at a time per Execute call;
// independent threads run in independent Execute calls with no shared
// mutable state. The checkpoint store is the only cross-thread structure.
package engine
