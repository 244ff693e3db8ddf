// Package google implements the calendar and email capabilities against the
// Google Calendar v3 and Gmail v1 REST APIs.
package google

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aria/internal/assistant/ports"
	ariaerrors "aria/internal/errors"
	"aria/internal/httpclient"
	"aria/internal/shared/jsonx"
	"aria/internal/shared/logging"
)

const defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// CalendarClient provides typed access to the primary Google calendar.
type CalendarClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// CalendarOption configures a CalendarClient.
type CalendarOption func(*CalendarClient)

// WithCalendarBaseURL overrides the API endpoint, mainly for tests.
func WithCalendarBaseURL(baseURL string) CalendarOption {
	return func(c *CalendarClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithCalendarHTTPClient overrides the outbound HTTP client.
func WithCalendarHTTPClient(client *http.Client) CalendarOption {
	return func(c *CalendarClient) { c.httpClient = client }
}

// NewCalendarClient constructs a calendar provider.
func NewCalendarClient(logger logging.Logger, opts ...CalendarOption) *CalendarClient {
	c := &CalendarClient{
		baseURL:    defaultCalendarBaseURL,
		httpClient: httpclient.New(30 * time.Second),
		logger:     logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type calendarEvent struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Status      string         `json:"status,omitempty"`
	Start       *eventDateTime `json:"start,omitempty"`
	End         *eventDateTime `json:"end,omitempty"`
	Attendees   []attendee     `json:"attendees,omitempty"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

func (c *CalendarClient) ListEvents(ctx context.Context, token string, q ports.EventQuery) ([]ports.Event, error) {
	values := url.Values{}
	values.Set("singleEvents", "true")
	values.Set("orderBy", "startTime")
	if !q.From.IsZero() {
		values.Set("timeMin", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		values.Set("timeMax", q.To.Format(time.RFC3339))
	}
	if q.MaxResults > 0 {
		values.Set("maxResults", strconv.Itoa(q.MaxResults))
	}

	var resp struct {
		Items []calendarEvent `json:"items"`
	}
	endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", c.baseURL, values.Encode())
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]ports.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, item.toPort())
	}
	return events, nil
}

func (c *CalendarClient) CreateEvent(ctx context.Context, token string, draft ports.EventDraft) (*ports.Event, error) {
	body := calendarEvent{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       &eventDateTime{DateTime: draft.Start.Format(time.RFC3339)},
		End:         &eventDateTime{DateTime: draft.End.Format(time.RFC3339)},
	}
	for _, email := range draft.Attendees {
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}

	var created calendarEvent
	endpoint := c.baseURL + "/calendars/primary/events"
	if err := c.do(ctx, token, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	ev := created.toPort()
	return &ev, nil
}

func (c *CalendarClient) UpdateEvent(ctx context.Context, token string, eventID string, patch ports.EventPatch) (*ports.Event, error) {
	body := calendarEvent{
		Summary:     patch.Title,
		Description: patch.Description,
		Location:    patch.Location,
	}
	if !patch.Start.IsZero() {
		body.Start = &eventDateTime{DateTime: patch.Start.Format(time.RFC3339)}
	}
	if !patch.End.IsZero() {
		body.End = &eventDateTime{DateTime: patch.End.Format(time.RFC3339)}
	}

	var updated calendarEvent
	endpoint := fmt.Sprintf("%s/calendars/primary/events/%s", c.baseURL, url.PathEscape(eventID))
	if err := c.do(ctx, token, http.MethodPatch, endpoint, body, &updated); err != nil {
		return nil, fmt.Errorf("update event %s: %w", eventID, err)
	}
	ev := updated.toPort()
	return &ev, nil
}

func (c *CalendarClient) DeleteEvent(ctx context.Context, token string, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/primary/events/%s", c.baseURL, url.PathEscape(eventID))
	if err := c.do(ctx, token, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

func (c *CalendarClient) CheckAvailability(ctx context.Context, token string, window ports.TimeSlot) (*ports.Availability, error) {
	body := map[string]any{
		"timeMin": window.Start.Format(time.RFC3339),
		"timeMax": window.End.Format(time.RFC3339),
		"items":   []map[string]string{{"id": "primary"}},
	}
	var resp struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.do(ctx, token, http.MethodPost, c.baseURL+"/freeBusy", body, &resp); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	availability := &ports.Availability{Window: window}
	for _, interval := range resp.Calendars["primary"].Busy {
		availability.Busy = append(availability.Busy, ports.TimeSlot{Start: interval.Start, End: interval.End})
	}
	availability.FreeSlots = freeSlots(window, availability.Busy)
	return availability, nil
}

// freeSlots computes the gaps in window not covered by busy intervals.
// Busy intervals are assumed sorted by start, as the API returns them.
func freeSlots(window ports.TimeSlot, busy []ports.TimeSlot) []ports.TimeSlot {
	var free []ports.TimeSlot
	cursor := window.Start
	for _, interval := range busy {
		if interval.Start.After(cursor) {
			free = append(free, ports.TimeSlot{Start: cursor, End: interval.Start})
		}
		if interval.End.After(cursor) {
			cursor = interval.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, ports.TimeSlot{Start: cursor, End: window.End})
	}
	return free
}

func (e calendarEvent) toPort() ports.Event {
	ev := ports.Event{
		ID:          e.ID,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
	}
	if e.Start != nil {
		ev.Start = parseEventTime(*e.Start)
	}
	if e.End != nil {
		ev.End = parseEventTime(*e.End)
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev
}

func parseEventTime(dt eventDateTime) time.Time {
	if dt.DateTime != "" {
		if ts, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return ts
		}
	}
	if dt.Date != "" {
		if ts, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (c *CalendarClient) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	return doJSON(ctx, c.httpClient, c.logger, token, method, endpoint, body, out)
}

// doJSON performs one authenticated JSON request. Non-2xx responses surface
// as HTTPError so the dispatcher can map them to a stable error category.
func doJSON(ctx context.Context, client *http.Client, logger logging.Logger, token, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := jsonx.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("%s %s -> %d", method, endpoint, resp.StatusCode)
		return &ariaerrors.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := jsonx.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
