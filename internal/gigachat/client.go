// Package gigachat is a minimal client for the GigaChat REST API: OAuth
// token exchange, chat completions and binary file download for generated
// images. Calls are rate limited locally and guarded by a circuit breaker so
// a misbehaving upstream degrades into fallback content instead of a stall.
package gigachat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	defaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	defaultModel   = "GigaChat"
	defaultScope   = "GIGACHAT_API_PERS"
)

var (
	// ErrRateLimited marks upstream throttling. It is the only error the
	// content pipeline retries on its long backoff schedule.
	ErrRateLimited = errors.New("gigachat: rate limited")

	// ErrUnauthorized marks a rejected or expired credential.
	ErrUnauthorized = errors.New("gigachat: unauthorized")

	// ErrCircuitOpen is returned while the breaker is rejecting calls.
	ErrCircuitOpen = errors.New("gigachat: circuit open")
)

// Config carries the credentials and tunables for a Client.
type Config struct {
	AuthKey string // base64 basic-auth key for the OAuth endpoint
	Scope   string
	Model   string
	BaseURL string
	AuthURL string

	// RequestsPerSecond caps outgoing calls; zero selects 1 rps.
	RequestsPerSecond float64
}

// Client talks to the GigaChat API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a configured client. Missing endpoints and model fall
// back to the production defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "gigachat",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// Throttling is the upstream telling us to slow down, not an
				// outage; it must not trip the breaker.
				return err == nil || errors.Is(err, ErrRateLimited)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("[GigaChat] circuit %s -> %s", from, to)
			},
		}),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Chat sends a completion request and returns the parsed response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chatOnce(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return out.(*ChatResponse), nil
}

func (c *Client) chatOnce(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gigachat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gigachat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gigachat: chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if err := c.classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var parsed ChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("gigachat: decode response: %w", err)
	}
	return &parsed, nil
}

// DownloadFile fetches the binary content of a generated file (images).
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("gigachat: build file request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/jpg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gigachat: file request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gigachat: read file: %w", err)
	}
	if err := c.classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// classifyStatus maps upstream HTTP failures onto the package sentinels so
// callers can pick the right retry strategy with errors.Is.
func (c *Client) classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, truncate(body, 200))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.invalidateToken()
		return fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	default:
		msg := strings.ToLower(string(body))
		if strings.Contains(msg, "too many requests") {
			return fmt.Errorf("%w: %s", ErrRateLimited, truncate(body, 200))
		}
		return fmt.Errorf("gigachat: status %d: %s", status, truncate(body, 200))
	}
}

// ensureToken returns a valid bearer token, refreshing through the OAuth
// endpoint when the cached one is absent or within a minute of expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	form := url.Values{"scope": {c.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gigachat: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.cfg.AuthKey)
	req.Header.Set("RqUID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: token exchange rejected", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gigachat: token status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("gigachat: decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("gigachat: empty access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.UnixMilli(tok.ExpiresAt)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
