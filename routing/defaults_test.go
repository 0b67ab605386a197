package routing

import (
	"testing"

	"github.com/BaSui01/taskflow/types"
)

func evalWorkflow(t *testing.T, s *types.State) Result {
	t.Helper()
	r := NewWorkflowRouter("workflow", 0.6, 0.7)
	doc, err := s.JSON()
	if err != nil {
		t.Fatalf("serialize state: %v", err)
	}
	res, err := r.Evaluate(doc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return res
}

func TestWorkflowRouter_PhaseProgression(t *testing.T) {
	steps := []struct {
		phase  types.Phase
		target string
	}{
		{types.PhaseInitialization, "analysis"},
		{types.PhaseAnalysis, "decomposition"},
		{types.PhaseDecomposition, "coordination"},
		{types.PhaseCoordination, "execution"},
		{types.PhaseExecution, "review"},
	}
	for _, step := range steps {
		t.Run(string(step.phase), func(t *testing.T) {
			s := testState()
			s.Workflow.CurrentPhase = step.phase
			res := evalWorkflow(t, s)
			if res.Target != step.target || res.Decision != DecisionContinue {
				t.Errorf("phase %s routed to %s/%s, want %s/continue",
					step.phase, res.Target, res.Decision, step.target)
			}
		})
	}
}

func TestWorkflowRouter_ReviewEnds(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseReview
	res := evalWorkflow(t, s)
	if res.Target != "completion" || res.Decision != DecisionEnd {
		t.Errorf("review routed to %s/%s, want completion/end", res.Target, res.Decision)
	}
}

func TestWorkflowRouter_QualityGate(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseExecution
	s.Metrics["quality_score"] = 0.5

	res := evalWorkflow(t, s)
	if res.Decision != DecisionError || res.Target != "error_handling" {
		t.Errorf("low quality routed to %s/%s, want error_handling/error", res.Target, res.Decision)
	}

	// Above the threshold the gate stays quiet.
	s.Metrics["quality_score"] = 0.9
	res = evalWorkflow(t, s)
	if res.Target != "review" {
		t.Errorf("good quality routed to %s, want review", res.Target)
	}
}

func TestWorkflowRouter_ConfidenceGate(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseExecution
	s.Metrics["confidence_score"] = 0.4

	res := evalWorkflow(t, s)
	if res.Target != "review" || res.Decision != DecisionContinue {
		t.Errorf("low confidence routed to %s/%s, want review/continue", res.Target, res.Decision)
	}
}

func TestWorkflowRouter_QualityOutranksConfidence(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseExecution
	s.Metrics["quality_score"] = 0.2
	s.Metrics["confidence_score"] = 0.2

	res := evalWorkflow(t, s)
	if res.Decision != DecisionError {
		t.Errorf("quality gate should win, got %s/%s", res.Target, res.Decision)
	}
}

func TestWorkflowRouter_NoScoresFollowPlainProgression(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseExecution
	res := evalWorkflow(t, s)
	if res.Target != "review" {
		t.Errorf("execution without scores routed to %s, want review", res.Target)
	}
}

func TestWorkflowRouter_ErrorHandling(t *testing.T) {
	s := testState()
	s.Workflow.CurrentPhase = types.PhaseErrorHandling

	// Error cleared: resume at execution.
	res := evalWorkflow(t, s)
	if res.Target != "execution" || res.Decision != DecisionContinue {
		t.Errorf("recovered error routed to %s/%s, want execution/continue", res.Target, res.Decision)
	}

	// Error still present: stay on the error path.
	s.Error = &types.ErrorRecord{Type: types.ErrCapability, Message: "still broken"}
	res = evalWorkflow(t, s)
	if res.Decision != DecisionError {
		t.Errorf("unresolved error routed to %s/%s, want error decision", res.Target, res.Decision)
	}
}
