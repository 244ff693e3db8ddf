package domain

// ActionResult is the uniform envelope every dispatch returns to the caller.
// Failures are values here; no error crosses the orchestrator boundary.
type ActionResult struct {
	Succeeded bool   `json:"succeeded"`
	Payload   any    `json:"payload,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	// ShouldRefreshData signals the caller that cached calendar/email views
	// are stale after a successful side-effecting action.
	ShouldRefreshData bool `json:"shouldRefreshDownstreamData"`
}

// SuccessResult builds a successful envelope.
func SuccessResult(payload any, refresh bool) ActionResult {
	return ActionResult{Succeeded: true, Payload: payload, ShouldRefreshData: refresh}
}

// FailureResult builds a failed envelope with a stable error category.
func FailureResult(kind string) ActionResult {
	return ActionResult{Succeeded: false, ErrorKind: kind}
}
