package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"aria/internal/assistant/ports"
	"aria/internal/auth"
)

// fakeCalendar records calls and serves canned data.
type fakeCalendar struct {
	mu          sync.Mutex
	events      []ports.Event
	listErr     error
	createErr   error
	deleteErr   error
	created     []ports.EventDraft
	deleted     []string
	updated     []string
	listCalls   int
	tokensSeen  []string
	createdStub *ports.Event
}

func (f *fakeCalendar) ListEvents(_ context.Context, token string, _ ports.EventQuery) ([]ports.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.tokensSeen = append(f.tokensSeen, token)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, token string, draft ports.EventDraft) (*ports.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokensSeen = append(f.tokensSeen, token)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, draft)
	if f.createdStub != nil {
		return f.createdStub, nil
	}
	return &ports.Event{ID: "evt-1", Title: draft.Title, Start: draft.Start, End: draft.End}, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, token string, eventID string, patch ports.EventPatch) (*ports.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokensSeen = append(f.tokensSeen, token)
	f.updated = append(f.updated, eventID)
	return &ports.Event{ID: eventID, Title: patch.Title}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, token string, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokensSeen = append(f.tokensSeen, token)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeCalendar) CheckAvailability(_ context.Context, token string, window ports.TimeSlot) (*ports.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokensSeen = append(f.tokensSeen, token)
	return &ports.Availability{Window: window, FreeSlots: []ports.TimeSlot{window}}, nil
}

func (f *fakeCalendar) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + len(f.created) + len(f.deleted) + len(f.updated)
}

// fakeEmail records calls and serves canned data.
type fakeEmail struct {
	mu       sync.Mutex
	messages []ports.EmailMessage
	sendErr  error
	sent     []ports.EmailDraft
	searches []string
}

func (f *fakeEmail) SearchMessages(_ context.Context, _ string, query string, _ int) ([]ports.EmailMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.messages, nil
}

func (f *fakeEmail) SendMessage(_ context.Context, _ string, draft ports.EmailDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, draft)
	return "msg-1", nil
}

// staticRefresher returns a fixed grant, or an error.
type staticRefresher struct {
	grant auth.Grant
	err   error
}

func (r *staticRefresher) Refresh(context.Context, string) (auth.Grant, error) {
	if r.err != nil {
		return auth.Grant{}, r.err
	}
	return r.grant, nil
}

// newTestManager seeds one principal whose access token stays valid for an
// hour unless expired is set.
func newTestManager(t interface{ Fatalf(string, ...any) }, userID string, expired bool, refresher auth.Refresher) *auth.Manager {
	store := auth.NewMemoryStore()
	expiry := time.Now().Add(time.Hour)
	if expired {
		expiry = time.Now().Add(-time.Hour)
	}
	mgr := auth.NewManager(store, refresher)
	err := mgr.Register(context.Background(), auth.Principal{
		UserID:       userID,
		AccessToken:  "tok-valid",
		RefreshToken: "rt-1",
		TokenExpiry:  expiry,
		Timezone:     "UTC",
	})
	if err != nil {
		t.Fatalf("register principal: %v", err)
	}
	return mgr
}

var errProviderDown = errors.New("backend unavailable")
