package matchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Client talks to the match REST API: full-match fetch for resync,
// prediction submission and the per-match prediction summary.
//
// Every request carries the current access token. A 401 triggers one shared
// token refresh (concurrent 401s wait on the same refresh) and a single
// retry of the original request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	onRefresh    func(accessToken string)

	refreshGroup singleflight.Group
}

func NewClient(baseURL string, ratePerSec int, accessToken, refreshToken string) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// OnTokenRefresh registers a callback run after each successful refresh,
// used to hand the new credential to the websocket session.
func (c *Client) OnTokenRefresh(fn func(accessToken string)) {
	c.mu.Lock()
	c.onRefresh = fn
	c.mu.Unlock()
}

// AccessToken returns the credential currently in use.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) ([]byte, int, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
	}

	token := c.AccessToken()
	respBody, status, err := c.send(ctx, method, path, data, header, token)
	if err != nil || status != http.StatusUnauthorized {
		return respBody, status, err
	}

	fresh, rerr := c.refresh(ctx, token)
	if rerr != nil {
		telemetry.Warnf("matchapi: token refresh failed: %v", rerr)
		return respBody, status, nil
	}
	return c.send(ctx, method, path, data, header, fresh)
}

func (c *Client) send(ctx context.Context, method, path string, data []byte, header http.Header, token string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	elapsed := time.Since(start)
	telemetry.Metrics.APILatency.Record(elapsed)
	telemetry.Debugf("matchapi: %s %s -> %d (%s)", method, path, resp.StatusCode, elapsed)

	return respBody, resp.StatusCode, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// refresh exchanges the refresh token for a new access token. stale is the
// token the failed request used; if another caller already replaced it the
// current token is returned without a second round trip.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		c.mu.RLock()
		current, rt := c.accessToken, c.refreshToken
		c.mu.RUnlock()

		if current != stale {
			return current, nil
		}
		if rt == "" {
			return "", fmt.Errorf("no refresh token")
		}

		data, err := json.Marshal(refreshRequest{RefreshToken: rt})
		if err != nil {
			return "", fmt.Errorf("marshal refresh: %w", err)
		}
		body, status, err := c.send(ctx, http.MethodPost, "/auth/refresh", data, nil, "")
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			return "", newAPIError(status, body)
		}

		var ar authResponse
		if err := json.Unmarshal(body, &ar); err != nil {
			return "", fmt.Errorf("unmarshal refresh response: %w", err)
		}
		if ar.AccessToken == "" {
			return "", fmt.Errorf("refresh response without access token")
		}

		c.mu.Lock()
		c.accessToken = ar.AccessToken
		if ar.RefreshToken != "" {
			c.refreshToken = ar.RefreshToken
		}
		cb := c.onRefresh
		c.mu.Unlock()

		telemetry.Infof("matchapi: access token refreshed (expires in %ds)", ar.ExpiresIn)
		if cb != nil {
			cb(ar.AccessToken)
		}
		return ar.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	body, status, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return decode(status, body, out)
}

func (c *Client) post(ctx context.Context, path string, in any, header http.Header, out any) error {
	body, status, err := c.do(ctx, http.MethodPost, path, in, header)
	if err != nil {
		return err
	}
	return decode(status, body, out)
}

func decode(status int, body []byte, out any) error {
	if status < 200 || status >= 300 {
		return newAPIError(status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
