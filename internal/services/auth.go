package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/tracksig/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyTokenURL = "https://accounts.spotify.com/api/token"

// AuthSession holds the bearer token shared by every catalog request.
//
// All reads and writes go through mu. [AuthSession.Refresh] is single-flight: callers that observed the same
// rejected token trigger one exchange between them, the rest pick up the replacement.
type AuthSession struct {
	mu     sync.Mutex
	config *clientcredentials.Config
	client *http.Client
	token  *oauth2.Token
	issued int
}

// NewAuthSession creates a session for the client-credentials grant. client carries the proxy used for the
// token exchange and defaults to [http.DefaultClient].
func NewAuthSession(cfg shared.SpotifyConfig, client *http.Client) (*AuthSession, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &AuthSession{
		config: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: client,
	}, nil
}

// Token returns the current access token, authenticating first if there is none or it has expired.
func (a *AuthSession) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && a.token.Valid() {
		return a.token.AccessToken, nil
	}
	if err := a.exchange(ctx); err != nil {
		return "", err
	}
	return a.token.AccessToken, nil
}

// Refresh replaces the token the caller saw rejected. When another caller already replaced stale, the newer
// token is returned without a second exchange.
func (a *AuthSession) Refresh(ctx context.Context, stale string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && a.token.AccessToken != stale && a.token.Valid() {
		return a.token.AccessToken, nil
	}
	if err := a.exchange(ctx); err != nil {
		return "", err
	}
	return a.token.AccessToken, nil
}

// Issued returns how many tokens the session has obtained.
func (a *AuthSession) Issued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued
}

// exchange must be called with mu held.
func (a *AuthSession) exchange(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.config.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrAuthFailed)
	}

	a.token = token
	a.issued++
	return nil
}
