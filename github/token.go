package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// tokenExpiryMargin is subtracted from a cached token's lifetime so a token
// is never handed out moments before GitHub rejects it.
const tokenExpiryMargin = 2 * time.Minute

// TokenSource exchanges a signed app assertion for installation access
// tokens. The assertion (issuer = app id, clock-skew-tolerant issued-at,
// short expiry) is minted and attached by the ghinstallation apps transport.
//
// Tokens are cached per installation id and refreshed before expiry; the
// cache is explicit state behind a lock, never shared beyond this source.
type TokenSource struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[int64]InstallationToken
}

// NewTokenSource creates a token source for the given app credentials.
// A malformed private key is a configuration error and fails immediately,
// before any network call.
func NewTokenSource(appID int64, privateKey []byte) (*TokenSource, error) {
	transport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create apps transport: %w", err)
	}

	return &TokenSource{
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		cache:      make(map[int64]InstallationToken),
	}, nil
}

// SetBaseURL overrides the GitHub API base URL (GitHub Enterprise, tests).
func (s *TokenSource) SetBaseURL(url string) {
	s.baseURL = url
}

// Token returns an access token scoped to the given installation, reusing a
// cached token while it remains comfortably within its validity window.
func (s *TokenSource) Token(ctx context.Context, installationID int64) (InstallationToken, error) {
	s.mu.Lock()
	cached, ok := s.cache[installationID]
	s.mu.Unlock()

	if ok && time.Until(cached.ExpiresAt) > tokenExpiryMargin {
		return cached, nil
	}

	token, err := s.exchange(ctx, installationID)
	if err != nil {
		return InstallationToken{}, err
	}

	s.mu.Lock()
	s.cache[installationID] = token
	s.mu.Unlock()

	return token, nil
}

// exchange calls the token-issuance endpoint with the app assertion.
func (s *TokenSource) exchange(ctx context.Context, installationID int64) (InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return InstallationToken{}, fmt.Errorf("failed to exchange token: status %d, body: %s", resp.StatusCode, string(body))
	}

	var issued struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return InstallationToken{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if issued.Token == "" {
		return InstallationToken{}, fmt.Errorf("token response missing token")
	}

	return InstallationToken{Value: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}
