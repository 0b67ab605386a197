// Package types defines the canonical workflow state model shared by every
// taskflow component: the task record, workflow context, coordination state,
// message log, and the structured error type.
//
// The types package is the lowest-level package with no internal dependencies,
// so placing the shared model here avoids circular imports. Components never
// mutate these structures directly; all writes go through the state package.
package types
