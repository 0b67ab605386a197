package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordsThroughRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("taskflow_test", reg, nil)

	c.RecordWorkflowExecution("completed", 2*time.Second, 6)
	c.RecordWorkflowExecution("completed", time.Second, 4)
	c.RecordWorkflowExecution("failed", time.Second, 50)
	c.RecordPhaseTransition("analysis", "decomposition", 300*time.Millisecond)
	c.RecordAgentExecution("analyst", "success")
	c.RecordAgentExecution("analyst", "error")
	c.RecordAgentRetry("analyst")
	c.RecordAgentTimeout("analyst")
	c.RecordCheckpointOp("create")
	c.RecordCheckpointFailure()
	c.RecordRoutingEvaluation("workflow", "continue")

	if got := testutil.ToFloat64(c.workflowExecutionsTotal.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.workflowExecutionsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.phaseTransitionsTotal.WithLabelValues("analysis", "decomposition")); got != 1 {
		t.Errorf("phase transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.agentExecutionsTotal.WithLabelValues("analyst", "error")); got != 1 {
		t.Errorf("agent errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.checkpointFailuresTotal); got != 1 {
		t.Errorf("checkpoint failures = %v, want 1", got)
	}
}

func TestCollector_NilRegistryDefaults(t *testing.T) {
	// nil logger must not panic; use a private registry to avoid polluting
	// the process-global one.
	reg := prometheus.NewRegistry()
	c := NewCollector("taskflow_nilcheck", reg, nil)
	c.RecordRoutingEvaluation("workflow", "end")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}
