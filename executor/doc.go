// Package executor wraps a pluggable agent capability in the uniform
// execution contract: per-attempt timeout, bounded sequential retries,
// pre/post/error hooks, and per-instance statistics.
//
// The wrapper never lets a capability failure escape its boundary. Callers
// always receive a valid state; on exhaustion the state carries an error
// record and sits in the error-handling phase.
package executor
