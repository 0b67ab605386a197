package executor

import "context"

// Capability is the single collaborator interface the core consumes: the
// externally supplied unit of work an agent performs. Implementations
// receive a read-only projection of workflow state and return an
// unconstrained JSON-serializable result, or an error on failure.
type Capability interface {
	Process(ctx context.Context, taskData map[string]any) (map[string]any, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, taskData map[string]any) (map[string]any, error)

// Process implements Capability.
func (f CapabilityFunc) Process(ctx context.Context, taskData map[string]any) (map[string]any, error) {
	return f(ctx, taskData)
}
