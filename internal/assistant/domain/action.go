package domain

// Action is the closed set of operations the assistant can perform on behalf
// of a user. Everything that is not a recognized operation classifies as
// ActionNone and stays conversational.
type Action string

const (
	ActionScheduleEvent     Action = "schedule_event"
	ActionCheckAvailability Action = "check_availability"
	ActionGetEvents         Action = "get_events"
	ActionSendEmail         Action = "send_email"
	ActionSearchEmail       Action = "search_email"
	ActionCancelEvent       Action = "cancel_event"
	ActionUpdateEvent       Action = "update_event"
	ActionNone              Action = "none"
)

// requiredParams is the single source of truth for which extracted parameters
// an action needs before it may be dispatched. Checked at one validation
// boundary (the clarification gate), never ad hoc.
var requiredParams = map[Action][]string{
	ActionScheduleEvent:     {"title", "dateTime"},
	ActionCheckAvailability: {"date"},
	ActionSendEmail:         {"recipients", "subject"},
	ActionSearchEmail:       {},
	ActionGetEvents:         {},
	ActionCancelEvent:       {},
	ActionUpdateEvent:       {},
	ActionNone:              {},
}

// ParseAction maps a classifier-reported name to an Action. Unrecognized
// names map to ActionNone with ok=false so schema drift surfaces explicitly.
func ParseAction(name string) (Action, bool) {
	a := Action(name)
	if _, known := requiredParams[a]; known {
		return a, true
	}
	return ActionNone, false
}

// KnownActions returns every dispatchable action, excluding ActionNone.
func KnownActions() []Action {
	return []Action{
		ActionScheduleEvent,
		ActionCheckAvailability,
		ActionGetEvents,
		ActionSendEmail,
		ActionSearchEmail,
		ActionCancelEvent,
		ActionUpdateEvent,
	}
}

// RequiredParams returns the parameters an action needs before dispatch.
func RequiredParams(a Action) []string {
	return requiredParams[a]
}

// SideEffecting reports whether a successful dispatch invalidates cached
// calendar/email views downstream.
func SideEffecting(a Action) bool {
	switch a {
	case ActionScheduleEvent, ActionSendEmail, ActionCancelEvent, ActionUpdateEvent:
		return true
	}
	return false
}

// Destructive reports whether the action removes or rewrites user data and
// therefore needs an explicit confirmation before dispatch.
func Destructive(a Action) bool {
	return a == ActionCancelEvent
}
