package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// OAuth2Refresher exchanges refresh tokens against a real OAuth 2.0 endpoint
// using golang.org/x/oauth2.
type OAuth2Refresher struct {
	config *oauth2.Config
}

// NewOAuth2Refresher wraps an oauth2 client configuration.
func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, scopes []string) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

// Refresh performs a single refresh grant. The provider may rotate the
// refresh token; the returned Grant carries it only when present.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Grant{}, err
	}
	grant := Grant{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}
	if tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}
