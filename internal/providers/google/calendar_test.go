package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aria/internal/assistant/ports"
	ariaerrors "aria/internal/errors"
	"aria/internal/shared/logging"
)

func TestListEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "true", r.URL.Query().Get("singleEvents"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				map[string]any{
					"id":      "ev1",
					"summary": "Standup",
					"start":   map[string]any{"dateTime": "2026-08-31T09:00:00Z"},
					"end":     map[string]any{"dateTime": "2026-08-31T09:15:00Z"},
					"attendees": []any{
						map[string]any{"email": "a@example.com"},
					},
				},
				map[string]any{
					"id":      "ev2",
					"summary": "Holiday",
					"start":   map[string]any{"date": "2026-09-01"},
					"end":     map[string]any{"date": "2026-09-02"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewCalendarClient(logging.Nop(), WithCalendarBaseURL(server.URL))
	events, err := client.ListEvents(context.Background(), "tok", ports.EventQuery{
		From: time.Now(),
		To:   time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, []string{"a@example.com"}, events[0].Attendees)
	assert.Equal(t, 2026, events[1].Start.Year())
}

func TestCreateEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Budget Review", body["summary"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "created-1",
			"summary": body["summary"],
			"status":  "confirmed",
			"start":   body["start"],
			"end":     body["end"],
		})
	}))
	defer server.Close()

	client := NewCalendarClient(logging.Nop(), WithCalendarBaseURL(server.URL))
	start := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	event, err := client.CreateEvent(context.Background(), "tok", ports.EventDraft{
		Title: "Budget Review",
		Start: start,
		End:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "created-1", event.ID)
	assert.Equal(t, "confirmed", event.Status)
	assert.True(t, event.Start.Equal(start))
}

func TestDeleteEventErrorSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewCalendarClient(logging.Nop(), WithCalendarBaseURL(server.URL))
	err := client.DeleteEvent(context.Background(), "tok", "ghost")
	require.Error(t, err)

	var httpErr *ariaerrors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestCheckAvailabilityComputesFreeSlots(t *testing.T) {
	windowStart := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(8 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/freeBusy", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"calendars": map[string]any{
				"primary": map[string]any{
					"busy": []any{
						map[string]any{
							"start": windowStart.Add(time.Hour).Format(time.RFC3339),
							"end":   windowStart.Add(2 * time.Hour).Format(time.RFC3339),
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewCalendarClient(logging.Nop(), WithCalendarBaseURL(server.URL))
	availability, err := client.CheckAvailability(context.Background(), "tok", ports.TimeSlot{
		Start: windowStart,
		End:   windowEnd,
	})
	require.NoError(t, err)
	require.Len(t, availability.Busy, 1)
	require.Len(t, availability.FreeSlots, 2)
	assert.True(t, availability.FreeSlots[0].Start.Equal(windowStart))
	assert.True(t, availability.FreeSlots[1].End.Equal(windowEnd))
}

func TestFreeSlotsFullyBusy(t *testing.T) {
	window := ports.TimeSlot{
		Start: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
	}
	free := freeSlots(window, []ports.TimeSlot{window})
	assert.Empty(t, free)
}
