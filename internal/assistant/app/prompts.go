// Package app implements the conversational core: intent classification,
// the clarification gate, action dispatch, and the per-turn orchestrator.
package app

import (
	"fmt"
	"strings"
	"time"

	"aria/internal/assistant/domain"
	"aria/internal/assistant/ports"
)

const classifierInstructions = `You are the intent classifier for a calendar and email assistant.
Interpret the user's latest message in the context of the conversation and,
when it expresses an actionable request, call exactly one of the provided
functions with every parameter you can extract. Set the confidence parameter
to your estimate (0.0 to 1.0) that you identified the right action; be
conservative when the message is ambiguous, partial, or could be small talk.
Express dates and times in ISO 8601 in the user's timezone. If the message is
small talk, a question you can answer directly, or otherwise not actionable,
reply in plain text instead of calling a function.`

const replyInstructions = `You are a warm, concise calendar and email assistant.
Answer in one or two short sentences suitable for being read aloud. Never
invent events, emails, or confirmations that are not in the provided data.`

// classifierSystemPrompt assembles the classification system message:
// instructions, clock and timezone, and any pending-task bias.
func classifierSystemPrompt(now time.Time, timezone string, pending *domain.PendingTask) string {
	var b strings.Builder
	b.WriteString(classifierInstructions)
	fmt.Fprintf(&b, "\n\nCurrent time: %s.", now.Format(time.RFC3339))
	if timezone != "" {
		fmt.Fprintf(&b, " User timezone: %s.", timezone)
	}
	if pending != nil {
		fmt.Fprintf(&b, "\n\nThe user was just asked to complete a pending %q request. Parameters collected so far: %s. If this message supplies missing details, answers the question, or confirms the request, call %s again carrying both the collected and the new parameters.",
			pending.Action, formatParams(pending.Params), pending.Action)
	}
	return b.String()
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "(none)"
	}
	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}

// confidenceProperty is required in every tool schema so the model reports
// its own certainty alongside the extracted parameters.
var confidenceProperty = map[string]any{
	"type":        "number",
	"description": "Your confidence, 0.0 to 1.0, that this is the action the user wants.",
}

func toolDefinitions() []ports.ToolDefinition {
	return []ports.ToolDefinition{
		{
			Name:        string(domain.ActionScheduleEvent),
			Description: "Create a calendar event.",
			Parameters: objectSchema(map[string]any{
				"title":       stringProp("Event title."),
				"dateTime":    stringProp("Start time, ISO 8601."),
				"duration":    map[string]any{"type": "integer", "description": "Duration in minutes. Default 60."},
				"attendees":   stringListProp("Attendee email addresses."),
				"location":    stringProp("Location, physical or a meeting link."),
				"description": stringProp("Event description."),
				"confidence":  confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionCheckAvailability),
			Description: "Report free time slots on a given day.",
			Parameters: objectSchema(map[string]any{
				"date":       stringProp("The day to check, ISO 8601 date."),
				"confidence": confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionGetEvents),
			Description: "List upcoming calendar events.",
			Parameters: objectSchema(map[string]any{
				"timeframe":  stringProp("today, tomorrow, week, or an ISO 8601 date. Default: the next 7 days."),
				"confidence": confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionSendEmail),
			Description: "Compose and send an email.",
			Parameters: objectSchema(map[string]any{
				"recipients": stringListProp("Recipient email addresses."),
				"subject":    stringProp("Subject line."),
				"body":       stringProp("Message body."),
				"confidence": confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionSearchEmail),
			Description: "Search the user's mailbox.",
			Parameters: objectSchema(map[string]any{
				"query":      stringProp("Search query, e.g. sender, subject words, or is:unread."),
				"limit":      map[string]any{"type": "integer", "description": "Maximum messages to return. Default 10."},
				"confidence": confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionCancelEvent),
			Description: "Cancel (delete) a calendar event. Destructive.",
			Parameters: objectSchema(map[string]any{
				"eventId":    stringProp("Event identifier, when known."),
				"title":      stringProp("Event title, used to find the event when no identifier is known."),
				"date":       stringProp("Day of the event, ISO 8601 date."),
				"confirmed":  map[string]any{"type": "boolean", "description": "True only when the user has explicitly confirmed the cancellation."},
				"confidence": confidenceProperty,
			}, "confidence"),
		},
		{
			Name:        string(domain.ActionUpdateEvent),
			Description: "Change an existing calendar event.",
			Parameters: objectSchema(map[string]any{
				"eventId":    stringProp("Event identifier, when known."),
				"title":      stringProp("Current event title, used to find the event."),
				"newTitle":   stringProp("New title, if it changes."),
				"dateTime":   stringProp("New start time, ISO 8601, if it changes."),
				"duration":   map[string]any{"type": "integer", "description": "New duration in minutes, if it changes."},
				"location":   stringProp("New location, if it changes."),
				"confidence": confidenceProperty,
			}, "confidence"),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func stringListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// clarificationQuestion phrases the follow-up for the first missing
// parameter. One question per turn keeps the exchange natural for voice.
func clarificationQuestion(action domain.Action, missing []string) string {
	if len(missing) == 0 {
		return "Could you tell me a bit more about what you'd like me to do?"
	}
	switch action {
	case domain.ActionScheduleEvent:
		switch missing[0] {
		case "title":
			return "Sure — what should I call the event?"
		case "dateTime":
			return "When should I schedule it?"
		}
	case domain.ActionSendEmail:
		switch missing[0] {
		case "recipients":
			return "Who should I send it to?"
		case "subject":
			return "What should the subject line be?"
		}
	case domain.ActionCheckAvailability:
		return "Which day should I check?"
	}
	return fmt.Sprintf("I still need the %s. Could you give me that?", missing[0])
}

// confirmationQuestion asks before a destructive action runs.
func confirmationQuestion(intent domain.Intent) string {
	title := intent.Param("title")
	if title == "" {
		title = "that event"
	} else {
		title = fmt.Sprintf("%q", title)
	}
	return fmt.Sprintf("Just to be sure — you want me to cancel %s?", title)
}
