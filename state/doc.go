// Package state owns every write to the workflow aggregate: the mutation
// primitives, the consistency validator, the phase transition manager, and
// the defensive repair pass for state arriving from storage.
//
// Mutators report business-condition failures through their return value and
// never panic. A State has a single writer (its workflow thread), so mutators
// update in place; fan-out branches operate on Clone copies and merge at one
// join point.
package state
