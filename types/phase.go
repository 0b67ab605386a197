package types

// Phase represents a workflow lifecycle stage.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseAnalysis       Phase = "analysis"
	PhaseDecomposition  Phase = "decomposition"
	PhaseCoordination   Phase = "coordination"
	PhaseExecution      Phase = "execution"
	PhaseReview         Phase = "review"
	PhaseCompletion     Phase = "completion"
	PhaseErrorHandling  Phase = "error_handling"
)

// AllPhases lists every phase in lifecycle order. ErrorHandling sits last
// because it is reachable from every non-terminal phase rather than being a
// step in the normal progression.
var AllPhases = []Phase{
	PhaseInitialization,
	PhaseAnalysis,
	PhaseDecomposition,
	PhaseCoordination,
	PhaseExecution,
	PhaseReview,
	PhaseCompletion,
	PhaseErrorHandling,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase ends the workflow.
func (p Phase) Terminal() bool {
	return p == PhaseCompletion
}

func (p Phase) String() string {
	return string(p)
}
