package googleads

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// expirySlack refreshes tokens a minute early so an upload never starts
// with a token about to lapse mid-batch.
const expirySlack = time.Minute

// tokenSource mints OAuth access tokens from a refresh token and caches
// them until expiry.
type tokenSource struct {
	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string
	http         *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func newTokenSource(clientID, clientSecret, refreshToken string, hc *http.Client) *tokenSource {
	return &tokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		tokenURL:     defaultTokenURL,
		http:         hc,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing if the cached one has
// expired or is about to.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires.Add(-expirySlack)) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("refresh_token", s.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "oauth: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "oauth: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "oauth: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("oauth: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", eris.Wrap(err, "oauth: unmarshal response")
	}
	if payload.AccessToken == "" {
		return "", eris.New("oauth: empty access token in response")
	}

	s.token = payload.AccessToken
	s.expires = s.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return s.token, nil
}
