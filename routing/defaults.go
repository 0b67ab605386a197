package routing

const phasePath = "workflow_context.current_phase"

// NewWorkflowRouter builds the standard phase-progression router:
// initialization through review in order, review gated by the confidence
// threshold, execution results gated by the quality threshold, and error
// handling routed back into execution once the error is cleared.
//
// Threshold checks only fire when the corresponding metric is present, so
// capabilities that report no scores follow the plain progression.
func NewWorkflowRouter(name string, confidenceThreshold, qualityThreshold float64) *Router {
	r := NewRouter(name, "completion", DecisionEnd)

	// Quality gate: bad execution output goes to error handling.
	r.AddRule(NewRule("low_quality",
		And(
			Field(phasePath, OpEquals, "execution"),
			Field("performance_metrics.quality_score", OpExists, nil),
			Field("performance_metrics.quality_score", OpLessThan, qualityThreshold),
		),
		"error_handling", DecisionError, 90))

	// Confidence gate: uncertain output gets an extra review pass.
	r.AddRule(NewRule("low_confidence",
		And(
			Field(phasePath, OpEquals, "execution"),
			Field("performance_metrics.confidence_score", OpExists, nil),
			Field("performance_metrics.confidence_score", OpLessThan, confidenceThreshold),
		),
		"review", DecisionContinue, 80))

	// Recovered errors resume at execution; unresolved ones end the run via
	// the engine's error path.
	r.AddRule(NewRule("error_recovered",
		And(
			Field(phasePath, OpEquals, "error_handling"),
			Field("error", OpNotExists, nil),
		),
		"execution", DecisionContinue, 70))
	r.AddRule(NewRule("error_unresolved",
		And(
			Field(phasePath, OpEquals, "error_handling"),
			Field("error", OpExists, nil),
		),
		"error_handling", DecisionError, 60))

	// Plain phase progression.
	steps := []struct{ name, from, to string }{
		{"start_analysis", "initialization", "analysis"},
		{"decompose", "analysis", "decomposition"},
		{"coordinate", "decomposition", "coordination"},
		{"execute", "coordination", "execution"},
		{"review", "execution", "review"},
	}
	for _, step := range steps {
		r.AddRule(NewRule(step.name,
			Field(phasePath, OpEquals, step.from),
			step.to, DecisionContinue, 10))
	}
	r.AddRule(NewRule("finish",
		Field(phasePath, OpEquals, "review"),
		"completion", DecisionEnd, 10))

	return r
}
