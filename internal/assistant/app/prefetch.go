package app

import (
	"context"
	"time"

	"aria/internal/assistant/ports"
	"aria/internal/auth"
	"aria/internal/shared/logging"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// PrefetchedContext is a read-only snapshot of the user's world gathered
// before classification so replies can mention real data without another
// round trip.
type PrefetchedContext struct {
	TodayEvents    []ports.Event        `json:"todayEvents,omitempty"`
	UpcomingEvents []ports.Event        `json:"upcomingEvents,omitempty"`
	RecentEmails   []ports.EmailMessage `json:"recentEmails,omitempty"`
	GatheredAt     time.Time            `json:"gatheredAt"`
}

// Prefetcher gathers calendar and mailbox snapshots in parallel, caching
// them per user. Side-effecting dispatches invalidate the cache so the next
// turn sees its own writes.
type Prefetcher struct {
	calendar ports.CalendarProvider
	email    ports.EmailProvider
	tokens   *auth.Manager
	logger   logging.Logger
	cache    *expirable.LRU[string, *PrefetchedContext]
	now      func() time.Time
}

// NewPrefetcher creates a prefetcher with snapshots cached for ttl.
func NewPrefetcher(calendar ports.CalendarProvider, email ports.EmailProvider, tokens *auth.Manager, logger logging.Logger, ttl time.Duration) *Prefetcher {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Prefetcher{
		calendar: calendar,
		email:    email,
		tokens:   tokens,
		logger:   logging.OrNop(logger),
		cache:    expirable.NewLRU[string, *PrefetchedContext](256, nil, ttl),
		now:      time.Now,
	}
}

// Gather returns the user's snapshot, from cache when fresh. Partial
// failures degrade to partial snapshots; a turn can proceed without
// prefetched context, so only a missing token is fatal.
func (p *Prefetcher) Gather(ctx context.Context, userID string) (*PrefetchedContext, error) {
	if snapshot, ok := p.cache.Get(userID); ok {
		return snapshot, nil
	}

	token, err := p.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	snapshot := &PrefetchedContext{GatheredAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		events, err := p.calendar.ListEvents(gctx, token, ports.EventQuery{
			From:       midnight,
			To:         midnight.AddDate(0, 0, 1),
			MaxResults: 10,
		})
		if err != nil {
			p.logger.Warn("prefetch today's events for %s: %v", userID, err)
			return nil
		}
		snapshot.TodayEvents = events
		return nil
	})
	g.Go(func() error {
		events, err := p.calendar.ListEvents(gctx, token, ports.EventQuery{
			From:       now,
			To:         now.AddDate(0, 0, 7),
			MaxResults: 15,
		})
		if err != nil {
			p.logger.Warn("prefetch upcoming events for %s: %v", userID, err)
			return nil
		}
		snapshot.UpcomingEvents = events
		return nil
	})
	g.Go(func() error {
		messages, err := p.email.SearchMessages(gctx, token, "in:inbox", 5)
		if err != nil {
			p.logger.Warn("prefetch recent emails for %s: %v", userID, err)
			return nil
		}
		snapshot.RecentEmails = messages
		return nil
	})
	_ = g.Wait()

	p.cache.Add(userID, snapshot)
	return snapshot, nil
}

// Invalidate drops the user's cached snapshot. Called after any dispatch
// that changed downstream state.
func (p *Prefetcher) Invalidate(userID string) {
	p.cache.Remove(userID)
}
