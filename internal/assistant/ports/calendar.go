package ports

import (
	"context"
	"time"
)

// Event is the provider-neutral view of a calendar event.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// EventQuery bounds a listing call.
type EventQuery struct {
	From       time.Time
	To         time.Time
	MaxResults int
}

// EventDraft describes an event to create.
type EventDraft struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Attendees   []string
}

// EventPatch carries only the fields to change; zero values are left alone.
type EventPatch struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
}

// TimeSlot is a free interval reported by an availability check.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability summarizes free/busy for a window.
type Availability struct {
	Window    TimeSlot   `json:"window"`
	Busy      []TimeSlot `json:"busy"`
	FreeSlots []TimeSlot `json:"freeSlots"`
}

// CalendarProvider is the downstream calendar capability. Every call takes
// the bearer token obtained from the token lifecycle manager immediately
// beforehand; providers never cache credentials.
type CalendarProvider interface {
	ListEvents(ctx context.Context, token string, q EventQuery) ([]Event, error)
	CreateEvent(ctx context.Context, token string, draft EventDraft) (*Event, error)
	UpdateEvent(ctx context.Context, token string, eventID string, patch EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, token string, eventID string) error
	CheckAvailability(ctx context.Context, token string, window TimeSlot) (*Availability, error)
}
