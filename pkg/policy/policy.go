package policy

// ActionKind classifies an operation by what a wrong answer costs when the
// state needed to authorize it cannot be read.
type ActionKind string

const (
	// ActionSettlement moves money; an unknown risk state must block it.
	ActionSettlement ActionKind = "settlement"
	// ActionGovernanceWrite mutates enforcement state.
	ActionGovernanceWrite ActionKind = "governance_write"
	// ActionListingRead surfaces ranking hints; stale is acceptable.
	ActionListingRead ActionKind = "listing_read"
	// ActionSignalRecord increments counters; losing one is recoverable.
	ActionSignalRecord ActionKind = "signal_record"
)

// Decision says whether the action may proceed despite an infra failure.
type Decision struct {
	Allow  bool
	Reason string
}

var failOpen = map[ActionKind]bool{
	ActionSettlement:      false,
	ActionGovernanceWrite: false,
	ActionListingRead:     true,
	ActionSignalRecord:    true,
}

// Decide resolves the fail-open/fail-closed policy for the action kind.
// A nil infraErr always allows. Unknown kinds fail closed.
func Decide(kind ActionKind, infraErr error) Decision {
	if infraErr == nil {
		return Decision{Allow: true}
	}
	if failOpen[kind] {
		return Decision{Allow: true, Reason: "fail-open: " + infraErr.Error()}
	}
	return Decision{Allow: false, Reason: "fail-closed: " + infraErr.Error()}
}

// FailsOpen reports the static policy for an action kind.
func FailsOpen(kind ActionKind) bool {
	return failOpen[kind]
}
