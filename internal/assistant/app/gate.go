package app

import "aria/internal/assistant/domain"

// Decision classifies an intent's readiness for dispatch.
type Decision int

const (
	// DecisionReady means every required parameter is present and any
	// needed confirmation was given.
	DecisionReady Decision = iota
	// DecisionNeedInfo means required parameters are missing; ask for them.
	DecisionNeedInfo
	// DecisionNeedConfirmation means the action is destructive and the user
	// has not explicitly confirmed it yet.
	DecisionNeedConfirmation
)

func (d Decision) String() string {
	switch d {
	case DecisionReady:
		return "ready"
	case DecisionNeedInfo:
		return "need_info"
	case DecisionNeedConfirmation:
		return "need_confirmation"
	default:
		return "unknown"
	}
}

// GateResult is the gate's verdict plus the parameters still owed, in the
// action's declared order.
type GateResult struct {
	Decision Decision
	Missing  []string
}

// EvaluateGate checks an intent against its action's parameter contract.
// It is pure: same intent, same verdict. Callers only invoke it for intents
// that cleared the execution floor.
func EvaluateGate(intent domain.Intent) GateResult {
	var missing []string
	for _, name := range domain.RequiredParams(intent.Action) {
		if !intent.HasParam(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return GateResult{Decision: DecisionNeedInfo, Missing: missing}
	}
	if domain.Destructive(intent.Action) && !intent.ParamBool("confirmed") {
		return GateResult{Decision: DecisionNeedConfirmation}
	}
	return GateResult{Decision: DecisionReady}
}
