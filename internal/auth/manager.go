package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"aria/internal/shared/logging"
)

// ExpirySkew is how long before the recorded expiry a token is treated as
// stale. Refreshing early keeps a downstream call from racing the deadline.
const ExpirySkew = 5 * time.Minute

// Manager owns OAuth credential validity and refresh for principals.
// Refresh is on-demand only; there is no background scheduler.
type Manager struct {
	store     PrincipalStore
	refresher Refresher
	logger    logging.Logger
	skew      time.Duration
	now       func() time.Time
	group     singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// WithSkew overrides the expiry leeway.
func WithSkew(skew time.Duration) Option {
	return func(m *Manager) {
		if skew > 0 {
			m.skew = skew
		}
	}
}

// WithNow lets tests control the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a token lifecycle manager.
func NewManager(store PrincipalStore, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		logger:    logging.Nop(),
		skew:      ExpirySkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccessToken returns a valid access token for the user, refreshing when the
// cached one is within the expiry skew. The common path is a cheap cached
// read with no network call.
//
// Concurrent calls for the same user coalesce onto one refresh; the flight
// re-checks freshness after acquiring the slot so a refresh completed while
// waiting is reused instead of repeated. This avoids invalidating rotating
// refresh tokens with simultaneous refresh requests.
func (m *Manager) AccessToken(ctx context.Context, userID string) (string, error) {
	p, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load principal %s: %w", userID, err)
	}

	if p.TokenValidAt(m.now(), m.skew) {
		return p.AccessToken, nil
	}

	if p.RefreshToken == "" {
		return "", fmt.Errorf("user %s: %w", userID, ErrNoRefreshToken)
	}

	token, err, _ := m.group.Do(userID, func() (any, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	// Reload: another flight may have refreshed while this call waited.
	p, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load principal %s: %w", userID, err)
	}
	if p.TokenValidAt(m.now(), m.skew) {
		return p.AccessToken, nil
	}
	if p.RefreshToken == "" {
		return "", fmt.Errorf("user %s: %w", userID, ErrNoRefreshToken)
	}

	grant, err := m.refresher.Refresh(ctx, p.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh for %s failed: %v", userID, err)
		return "", fmt.Errorf("user %s: %w: %v", userID, ErrRefreshFailed, err)
	}

	p.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		p.RefreshToken = grant.RefreshToken
	}
	p.TokenExpiry = grant.Expiry
	p.UpdatedAt = m.now()

	if err := m.store.Upsert(ctx, p); err != nil {
		return "", fmt.Errorf("persist refreshed principal %s: %w", userID, err)
	}

	m.logger.Debug("refreshed access token for %s, expires %s", userID, grant.Expiry.Format(time.RFC3339))
	return p.AccessToken, nil
}

// Principal returns the stored principal for callers that need timezone or
// identity fields alongside the credential.
func (m *Manager) Principal(ctx context.Context, userID string) (Principal, error) {
	return m.store.Get(ctx, userID)
}

// Register persists credential state after an external authentication flow.
func (m *Manager) Register(ctx context.Context, p Principal) error {
	if p.UserID == "" {
		return fmt.Errorf("principal missing user id")
	}
	p.UpdatedAt = m.now()
	return m.store.Upsert(ctx, p)
}
