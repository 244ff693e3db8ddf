package app

import (
	"context"
	"testing"
	"time"

	"aria/internal/assistant/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefetchGatherAndCache(t *testing.T) {
	cal := &fakeCalendar{events: []ports.Event{{ID: "evt-1", Title: "Standup"}}}
	email := &fakeEmail{messages: []ports.EmailMessage{{ID: "msg-1", Subject: "hi"}}}
	mgr := newTestManager(t, "u1", false, &staticRefresher{})
	p := NewPrefetcher(cal, email, mgr, nil, time.Minute)

	snapshot, err := p.Gather(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, snapshot.TodayEvents, 1)
	assert.Len(t, snapshot.UpcomingEvents, 1)
	assert.Len(t, snapshot.RecentEmails, 1)
	firstCalls := cal.calls()

	// Second gather is served from cache.
	again, err := p.Gather(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, snapshot, again)
	assert.Equal(t, firstCalls, cal.calls())

	p.Invalidate("u1")
	_, err = p.Gather(context.Background(), "u1")
	require.NoError(t, err)
	assert.Greater(t, cal.calls(), firstCalls)
}

func TestPrefetchPartialFailure(t *testing.T) {
	cal := &fakeCalendar{listErr: errProviderDown}
	email := &fakeEmail{messages: []ports.EmailMessage{{ID: "msg-1"}}}
	mgr := newTestManager(t, "u1", false, &staticRefresher{})
	p := NewPrefetcher(cal, email, mgr, nil, time.Minute)

	snapshot, err := p.Gather(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, snapshot.TodayEvents)
	assert.Len(t, snapshot.RecentEmails, 1)
}

func TestPrefetchRequiresToken(t *testing.T) {
	mgr := newTestManager(t, "u1", true, &staticRefresher{err: errProviderDown})
	p := NewPrefetcher(&fakeCalendar{}, &fakeEmail{}, mgr, nil, time.Minute)

	_, err := p.Gather(context.Background(), "u1")
	assert.Error(t, err)
}
