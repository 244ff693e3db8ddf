package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aria/internal/assistant/domain"
	"aria/internal/assistant/ports"
	"aria/internal/auth"
	ariaerrors "aria/internal/errors"
	"aria/internal/shared/logging"
)

const (
	defaultEventDuration = 60 * time.Minute
	defaultSearchLimit   = 10
	lookupWindow         = 30 * 24 * time.Hour
)

// Dispatcher routes a gated intent to the matching downstream operation.
// Failures come back as values inside the ActionResult; the only things a
// dispatcher can do with an error are record it and describe it.
type Dispatcher struct {
	calendar ports.CalendarProvider
	email    ports.EmailProvider
	tokens   *auth.Manager
	logger   logging.Logger
	now      func() time.Time
}

// DispatcherOption customizes dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithDispatcherNow injects a clock for tests.
func WithDispatcherNow(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher over the given providers.
func NewDispatcher(calendar ports.CalendarProvider, email ports.EmailProvider, tokens *auth.Manager, logger logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		calendar: calendar,
		email:    email,
		tokens:   tokens,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs one action for the user. A valid access token is obtained
// first; if that fails no downstream call is attempted and the result
// carries the auth failure.
func (d *Dispatcher) Execute(ctx context.Context, userID string, intent domain.Intent) domain.ActionResult {
	token, err := d.tokens.AccessToken(ctx, userID)
	if err != nil {
		d.logger.Warn("token unavailable for user %s: %v", userID, err)
		result := domain.FailureResult(string(ariaerrors.KindAuthFailure))
		result.Payload = map[string]any{"reason": authReason(err)}
		return result
	}

	loc := d.userLocation(ctx, userID)

	switch intent.Action {
	case domain.ActionScheduleEvent:
		return d.scheduleEvent(ctx, token, intent, loc)
	case domain.ActionCheckAvailability:
		return d.checkAvailability(ctx, token, intent, loc)
	case domain.ActionGetEvents:
		return d.getEvents(ctx, token, intent, loc)
	case domain.ActionSendEmail:
		return d.sendEmail(ctx, token, intent)
	case domain.ActionSearchEmail:
		return d.searchEmail(ctx, token, intent)
	case domain.ActionCancelEvent:
		return d.cancelEvent(ctx, token, intent, loc)
	case domain.ActionUpdateEvent:
		return d.updateEvent(ctx, token, intent, loc)
	default:
		d.logger.Error("no operation mapped for action %q", intent.Action)
		return domain.FailureResult(string(ariaerrors.KindUnknownAction))
	}
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoRefreshToken):
		return string(ariaerrors.KindNoRefreshToken)
	case errors.Is(err, auth.ErrRefreshFailed):
		return string(ariaerrors.KindRefreshFailed)
	case errors.Is(err, auth.ErrPrincipalNotFound):
		return "PrincipalNotFound"
	default:
		return string(ariaerrors.KindAuthFailure)
	}
}

// userLocation resolves the user's timezone for date-only parameters.
// Falls back to UTC rather than failing the dispatch.
func (d *Dispatcher) userLocation(ctx context.Context, userID string) *time.Location {
	principal, err := d.tokens.Principal(ctx, userID)
	if err != nil || principal.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(principal.Timezone)
	if err != nil {
		d.logger.Warn("bad timezone %q for user %s: %v", principal.Timezone, userID, err)
		return time.UTC
	}
	return loc
}

func (d *Dispatcher) scheduleEvent(ctx context.Context, token string, intent domain.Intent, loc *time.Location) domain.ActionResult {
	start, err := parseDateTime(intent.Param("dateTime"), loc)
	if err != nil {
		return invalidParam("dateTime", err)
	}
	duration := defaultEventDuration
	if mins := paramInt(intent.Params, "duration"); mins > 0 {
		duration = time.Duration(mins) * time.Minute
	}

	draft := ports.EventDraft{
		Title:       intent.Param("title"),
		Description: intent.Param("description"),
		Start:       start,
		End:         start.Add(duration),
		Location:    intent.Param("location"),
		Attendees:   paramStrings(intent.Params, "attendees"),
	}
	event, err := d.calendar.CreateEvent(ctx, token, draft)
	if err != nil {
		return d.providerFailure("create event", err)
	}
	return domain.SuccessResult(event, true)
}

func (d *Dispatcher) checkAvailability(ctx context.Context, token string, intent domain.Intent, loc *time.Location) domain.ActionResult {
	day, err := parseDate(intent.Param("date"), loc, d.now())
	if err != nil {
		return invalidParam("date", err)
	}
	window := ports.TimeSlot{Start: day, End: day.Add(24 * time.Hour)}
	availability, err := d.calendar.CheckAvailability(ctx, token, window)
	if err != nil {
		return d.providerFailure("check availability", err)
	}
	return domain.SuccessResult(availability, false)
}

func (d *Dispatcher) getEvents(ctx context.Context, token string, intent domain.Intent, loc *time.Location) domain.ActionResult {
	from, to := timeframeBounds(intent.Param("timeframe"), d.now().In(loc))
	events, err := d.calendar.ListEvents(ctx, token, ports.EventQuery{
		From:       from,
		To:         to,
		MaxResults: 25,
	})
	if err != nil {
		return d.providerFailure("list events", err)
	}
	return domain.SuccessResult(map[string]any{
		"events": events,
		"from":   from,
		"to":     to,
	}, false)
}

func (d *Dispatcher) sendEmail(ctx context.Context, token string, intent domain.Intent) domain.ActionResult {
	draft := ports.EmailDraft{
		To:      paramStrings(intent.Params, "recipients"),
		Subject: intent.Param("subject"),
		Body:    intent.Param("body"),
	}
	id, err := d.email.SendMessage(ctx, token, draft)
	if err != nil {
		return d.providerFailure("send email", err)
	}
	return domain.SuccessResult(map[string]any{"messageId": id}, true)
}

func (d *Dispatcher) searchEmail(ctx context.Context, token string, intent domain.Intent) domain.ActionResult {
	query := intent.Param("query")
	if query == "" {
		query = "in:inbox"
	}
	limit := paramInt(intent.Params, "limit")
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	messages, err := d.email.SearchMessages(ctx, token, query, limit)
	if err != nil {
		return d.providerFailure("search email", err)
	}
	return domain.SuccessResult(map[string]any{
		"messages": messages,
		"query":    query,
	}, false)
}

func (d *Dispatcher) cancelEvent(ctx context.Context, token string, intent domain.Intent, loc *time.Location) domain.ActionResult {
	eventID := intent.Param("eventId")
	var matched *ports.Event
	if eventID == "" {
		event, result := d.findEventByTitle(ctx, token, intent, loc)
		if event == nil {
			return result
		}
		matched = event
		eventID = event.ID
	}
	if err := d.calendar.DeleteEvent(ctx, token, eventID); err != nil {
		return d.providerFailure("cancel event", err)
	}
	payload := map[string]any{"eventId": eventID}
	if matched != nil {
		payload["title"] = matched.Title
	}
	return domain.SuccessResult(payload, true)
}

func (d *Dispatcher) updateEvent(ctx context.Context, token string, intent domain.Intent, loc *time.Location) domain.ActionResult {
	eventID := intent.Param("eventId")
	if eventID == "" {
		event, result := d.findEventByTitle(ctx, token, intent, loc)
		if event == nil {
			return result
		}
		eventID = event.ID
	}

	patch := ports.EventPatch{
		Title:    intent.Param("newTitle"),
		Location: intent.Param("location"),
	}
	if raw := intent.Param("dateTime"); raw != "" {
		start, err := parseDateTime(raw, loc)
		if err != nil {
			return invalidParam("dateTime", err)
		}
		patch.Start = start
		duration := defaultEventDuration
		if mins := paramInt(intent.Params, "duration"); mins > 0 {
			duration = time.Duration(mins) * time.Minute
		}
		patch.End = start.Add(duration)
	}

	event, err := d.calendar.UpdateEvent(ctx, token, eventID, patch)
	if err != nil {
		return d.providerFailure("update event", err)
	}
	return domain.SuccessResult(event, true)
}

// findEventByTitle resolves an event reference like "the budget review on
// Friday" to a concrete event ID. On failure the returned result explains
// why; the event is nil exactly when the result is a failure.
func (d *Dispatcher) findEventByTitle(ctx context.Context, token string, intent domain.Intent, loc *time.Location) (*ports.Event, domain.ActionResult) {
	title := intent.Param("title")
	if title == "" {
		return nil, invalidParam("eventId", errors.New("no event identifier or title given"))
	}

	from := d.now()
	to := from.Add(lookupWindow)
	if raw := intent.Param("date"); raw != "" {
		day, err := parseDate(raw, loc, d.now())
		if err != nil {
			return nil, invalidParam("date", err)
		}
		from, to = day, day.Add(24*time.Hour)
	}

	events, err := d.calendar.ListEvents(ctx, token, ports.EventQuery{From: from, To: to, MaxResults: 50})
	if err != nil {
		result := d.providerFailure("find event", err)
		return nil, result
	}

	want := strings.ToLower(title)
	for i := range events {
		if strings.Contains(strings.ToLower(events[i].Title), want) {
			return &events[i], domain.ActionResult{}
		}
	}
	result := domain.FailureResult("EventNotFound")
	result.Payload = map[string]any{"title": title}
	return nil, result
}

func (d *Dispatcher) providerFailure(op string, err error) domain.ActionResult {
	kind := ariaerrors.KindOf(err)
	d.logger.Warn("%s failed (%s): %v", op, kind, err)
	result := domain.FailureResult(string(kind))
	result.Payload = map[string]any{"detail": err.Error()}
	return result
}

func invalidParam(name string, err error) domain.ActionResult {
	result := domain.FailureResult("InvalidParameter")
	result.Payload = map[string]any{"parameter": name, "detail": err.Error()}
	return result
}

// parseDateTime accepts the ISO 8601 forms the classifier is instructed to
// emit, plus the lenient variants models produce anyway.
func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty")
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	if t, ok := parseRelativeDateTime(raw, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

// parseRelativeDateTime covers "today"/"tomorrow" with an optional clock
// time ("tomorrow at 2pm"). Models occasionally pass the user's words
// through instead of resolving them; a morning default beats refusing.
func parseRelativeDateTime(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	now := time.Now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch {
	case strings.HasPrefix(s, "tomorrow"):
		day = day.AddDate(0, 0, 1)
		s = strings.TrimPrefix(s, "tomorrow")
	case strings.HasPrefix(s, "today"):
		s = strings.TrimPrefix(s, "today")
	default:
		return time.Time{}, false
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "at"))
	if s == "" {
		return day.Add(9 * time.Hour), true
	}
	for _, layout := range []string{"3pm", "3:04pm", "15:04", "15"} {
		if clock, err := time.Parse(layout, strings.ReplaceAll(s, " ", "")); err == nil {
			return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), true
		}
	}
	return day.Add(9 * time.Hour), true
}

// parseDate resolves a date-only parameter to local midnight. "today" and
// "tomorrow" show up despite the schema asking for ISO dates.
func parseDate(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	today := now.In(loc)
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	switch raw {
	case "":
		return time.Time{}, errors.New("empty")
	case "today":
		return midnight, nil
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	if t, err := parseDateTime(raw, loc); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// timeframeBounds maps the get_events timeframe parameter to a window.
func timeframeBounds(timeframe string, now time.Time) (time.Time, time.Time) {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch strings.ToLower(strings.TrimSpace(timeframe)) {
	case "today":
		return midnight, midnight.AddDate(0, 0, 1)
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), midnight.AddDate(0, 0, 2)
	case "week", "this week", "":
		return now, now.AddDate(0, 0, 7)
	case "month":
		return now, now.AddDate(0, 1, 0)
	default:
		if day, err := parseDate(timeframe, loc, now); err == nil {
			return day, day.AddDate(0, 0, 1)
		}
		return now, now.AddDate(0, 0, 7)
	}
}

func paramInt(params map[string]any, name string) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func paramStrings(params map[string]any, name string) []string {
	switch v := params[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
