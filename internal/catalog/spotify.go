package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"campuschat/internal/config"
	"campuschat/pkg/logger"

	"github.com/tidwall/gjson"
)

// tokenRefreshMargin is how long before expiry a token is replaced.
const tokenRefreshMargin = 60 * time.Second

// SpotifyClient calls the Spotify Web API with a client-credentials token.
type SpotifyClient struct {
	cfg    config.SpotifyConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewSpotifyClient(cfg config.SpotifyConfig) *SpotifyClient {
	return &SpotifyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Fetch performs an authenticated GET against the API and returns the raw
// JSON body.
func (c *SpotifyClient) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.cfg.APIURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.invalidate()
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("catalog request %s failed with status %d: %s", path, status, gjson.GetBytes(body, "error.message").String())
	}
	return body, nil
}

// accessToken returns the cached token, fetching a new one when it is
// missing or about to expire.
func (c *SpotifyClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", fmt.Errorf("spotify credentials are not configured")
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status >= http.StatusBadRequest {
		return "", fmt.Errorf("token request failed with status %d: %s", status, gjson.GetBytes(body, "error_description").String())
	}

	result := gjson.ParseBytes(body)
	token := result.Get("access_token").String()
	if token == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	c.token = token
	c.expires = c.now().Add(time.Duration(result.Get("expires_in").Int()) * time.Second)

	logger.Debugf("Refreshed catalog token, expires at %s", c.expires.Format(time.RFC3339))
	return c.token, nil
}

func (c *SpotifyClient) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *SpotifyClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read catalog response: %w", err)
	}
	return body, resp.StatusCode, nil
}
