package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aria/internal/assistant/app"
	"aria/internal/assistant/ports"
	"aria/internal/auth"
	"aria/internal/config"
	"aria/internal/contextstore"
	"aria/internal/llm"
	"aria/internal/shared/jsonx"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCalendar struct{ created int }

func (s *stubCalendar) ListEvents(context.Context, string, ports.EventQuery) ([]ports.Event, error) {
	return nil, nil
}

func (s *stubCalendar) CreateEvent(_ context.Context, _ string, draft ports.EventDraft) (*ports.Event, error) {
	s.created++
	return &ports.Event{ID: "evt-1", Title: draft.Title}, nil
}

func (s *stubCalendar) UpdateEvent(_ context.Context, _ string, eventID string, _ ports.EventPatch) (*ports.Event, error) {
	return &ports.Event{ID: eventID}, nil
}

func (s *stubCalendar) DeleteEvent(context.Context, string, string) error { return nil }

func (s *stubCalendar) CheckAvailability(_ context.Context, _ string, window ports.TimeSlot) (*ports.Availability, error) {
	return &ports.Availability{Window: window}, nil
}

type stubEmail struct{}

func (stubEmail) SearchMessages(context.Context, string, string, int) ([]ports.EmailMessage, error) {
	return nil, nil
}

func (stubEmail) SendMessage(context.Context, string, ports.EmailDraft) (string, error) {
	return "msg-1", nil
}

type stubRefresher struct{}

func (stubRefresher) Refresh(context.Context, string) (auth.Grant, error) {
	return auth.Grant{AccessToken: "tok-new", Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestServer(t *testing.T) (*Server, *llm.MockClient, *stubCalendar) {
	t.Helper()
	mock := llm.NewMockClient()
	cal := &stubCalendar{}
	mgr := auth.NewManager(auth.NewMemoryStore(), stubRefresher{})
	require.NoError(t, mgr.Register(context.Background(), auth.Principal{
		UserID:      "u1",
		AccessToken: "tok-valid",
		TokenExpiry: time.Now().Add(time.Hour),
	}))

	orchestrator := app.NewOrchestrator(
		contextstore.NewMemoryStore(),
		app.NewClassifier(mock, nil),
		app.NewDispatcher(cal, stubEmail{}, mgr, nil),
		mgr,
		mock,
		nil,
	)
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, orchestrator, mgr, nil)
	return srv, mock, cal
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestTurnEndpoint(t *testing.T) {
	srv, mock, cal := newTestServer(t)
	mock.EnqueueToolCall("schedule_event", `{"title":"Budget Review","dateTime":"2026-09-01T14:00:00Z","confidence":0.9}`)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/turn",
		`{"userId":"u1","sessionId":"s1","utterance":"schedule budget review tuesday 2pm"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var out app.TurnOutput
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Succeeded)
	assert.Equal(t, 1, cal.created)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTurnEndpointValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/turn", `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// A turn creates the session.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/turn",
		`{"userId":"u1","sessionId":"s1","utterance":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/users/u1/sessions/s1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hello"`)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/v1/users/u1/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/users/u1/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Clearing an absent session still succeeds.
	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/v1/users/u1/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRegisterPrincipal(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/principals",
		`{"userId":"u2","accessToken":"tok-2","refreshToken":"rt-2","timezone":"America/New_York"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/principals", `{"userId":"u3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketTurnRoundTrip(t *testing.T) {
	srv, mock, _ := newTestServer(t)
	mock.EnqueueToolCall("get_events", `{"confidence":0.9}`)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"userId":    "u1",
		"sessionId": "s1",
		"utterance": "what's on my calendar?",
	}))

	var out app.TurnOutput
	require.NoError(t, conn.ReadJSON(&out))
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Succeeded)
	assert.Equal(t, "s1", out.SessionID)
}

func TestRequestIDHonored(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-custom")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-custom", rec.Header().Get("X-Request-ID"))
}
