package domain

import "strings"

// ExecutionFloor is the strict confidence threshold below which (inclusive) a
// turn stays conversational. The bias is deliberately false-negative: a
// misheard utterance must not send email or delete events.
const ExecutionFloor = 0.7

// Intent is the structured interpretation of one utterance. It is ephemeral;
// only parameters merged into a pending task survive the turn.
type Intent struct {
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"`
	Params     map[string]any `json:"parameters,omitempty"`
}

// NoneIntent is the soft-failure value: conversational, zero confidence.
func NoneIntent() Intent {
	return Intent{Action: ActionNone, Confidence: 0, Params: map[string]any{}}
}

// Executable reports whether the intent cleared the execution floor.
// The comparison is strict; exactly 0.7 does not dispatch.
func (i Intent) Executable() bool {
	return i.Action != ActionNone && i.Confidence > ExecutionFloor
}

// Param returns the named parameter as a trimmed string, or "" when absent
// or not a string-like value.
func (i Intent) Param(name string) string {
	return paramString(i.Params, name)
}

// HasParam reports whether the named parameter is present and non-empty.
func (i Intent) HasParam(name string) bool {
	return i.Param(name) != ""
}

// MergeParams overlays newer parameters on top of previously collected ones.
// Newly extracted values win; empty strings never overwrite collected values.
func MergeParams(collected, extracted map[string]any) map[string]any {
	merged := make(map[string]any, len(collected)+len(extracted))
	for k, v := range collected {
		merged[k] = v
	}
	for k, v := range extracted {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		if v == nil {
			continue
		}
		merged[k] = v
	}
	return merged
}

func paramString(params map[string]any, name string) string {
	if params == nil {
		return ""
	}
	switch v := params[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// ParamBool returns the named parameter interpreted as a boolean flag.
func (i Intent) ParamBool(name string) bool {
	if i.Params == nil {
		return false
	}
	switch v := i.Params[name].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes"
	default:
		return false
	}
}
