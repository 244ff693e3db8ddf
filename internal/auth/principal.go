package auth

import (
	"context"
	"errors"
	"time"
)

// Principal holds a user identity and its OAuth credential state.
//
// Token fields are mutated only through Manager refreshes; creation happens
// at first successful authentication and deletion is an external
// account-management concern.
type Principal struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`
	Timezone     string    `json:"timezone,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenValidAt reports whether the cached access token is still usable at
// now, keeping the given leeway before the recorded expiry.
func (p Principal) TokenValidAt(now time.Time, leeway time.Duration) bool {
	if p.AccessToken == "" || p.TokenExpiry.IsZero() {
		return false
	}
	if leeway < 0 {
		leeway = 0
	}
	return now.Add(leeway).Before(p.TokenExpiry)
}

var (
	// ErrPrincipalNotFound indicates no stored credential state for the user.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrNoRefreshToken indicates the access token expired and no refresh
	// token is stored; the user must re-authenticate.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrRefreshFailed indicates the auth provider rejected the refresh.
	// The stale access token must not be used under this condition.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// PrincipalStore persists principals keyed by user ID.
type PrincipalStore interface {
	Get(ctx context.Context, userID string) (Principal, error)
	Upsert(ctx context.Context, p Principal) error
}

// Grant is the result of a successful refresh. RefreshToken may be empty:
// some providers omit it on refresh, in which case the stored one is kept.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Refresher exchanges a refresh token for a new grant at the auth provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}
