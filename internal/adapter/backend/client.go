// Package backend is the REST client for the approval backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	PathPendingStatus  = "/pushcut/status"
	PathRegisterDevice = "/devices/register"
	PathApprove        = "/approve"
	PathReject         = "/reject"

	HeaderDeviceToken = "X-Device-Token"

	maxBodyBytes = 1 << 20
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.BackendClient.
type Client struct {
	cfg         config.BackendConfig
	httpClient  HTTPClient
	limiter     *rate.Limiter
	backoffBase time.Duration
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the base delay between list fetch retries.
func WithBackoff(base time.Duration) Option {
	return func(c *Client) { c.backoffBase = base }
}

// NewClient builds a backend client. A nil httpClient gets an *http.Client
// bounded by cfg.Timeout.
func NewClient(cfg config.BackendConfig, httpClient HTTPClient, log zerolog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		backoffBase: 250 * time.Millisecond,
		log:         logger.Component(log, "backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.BackendClient = (*Client)(nil)

// DecisionDefaults returns <backend>/approve and <backend>/reject.
func (c *Client) DecisionDefaults() (string, string) {
	return c.cfg.Endpoint(PathApprove), c.cfg.Endpoint(PathReject)
}

// FetchPending GETs the pending list. Network errors and 5xx responses are
// retried with exponential backoff; other statuses fail immediately.
func (c *Client) FetchPending(ctx context.Context, token string) ([]byte, error) {
	url := c.cfg.Endpoint(PathPendingStatus)
	attempts := 1 + max(c.cfg.FetchRetries, 0)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, apperror.ErrNetwork(err)
			}
		}

		body, status, err := c.do(ctx, http.MethodGet, url, token, nil)
		switch {
		case err != nil:
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("fetch pending: transport error")
		case status >= 500:
			lastErr = apperror.ErrAPI(status, url)
			c.log.Warn().Int("status", status).Int("attempt", attempt+1).Msg("fetch pending: server error")
		case status < 200 || status >= 300:
			return nil, apperror.ErrAPI(status, url)
		default:
			return body, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// PostDecision posts a decision once. Decisions are never retried here: the
// caller rolls back on failure and the user decides again.
func (c *Client) PostDecision(ctx context.Context, endpoint, token, actionID string) (*ports.DecisionResponse, error) {
	payload := map[string]string{"token": token, "actionId": actionID}
	body, status, err := c.do(ctx, http.MethodPost, endpoint, token, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apperror.ErrAPI(status, endpoint)
	}

	resp := &ports.DecisionResponse{Success: true, ActionID: actionID}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, resp); err != nil {
			c.log.Debug().Err(err).Str("action_id", actionID).Msg("decision response body ignored")
			resp = &ports.DecisionResponse{Success: true, ActionID: actionID}
		}
	}
	return resp, nil
}

// RegisterDevice posts the device token (and optional push token).
func (c *Client) RegisterDevice(ctx context.Context, req ports.RegisterDeviceRequest) (*ports.RegisterDeviceResponse, error) {
	url := c.cfg.Endpoint(PathRegisterDevice)
	body, status, err := c.do(ctx, http.MethodPost, url, req.Token, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apperror.ErrAPI(status, url)
	}

	resp := &ports.RegisterDeviceResponse{Success: true}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, resp); err != nil {
			c.log.Warn().Err(err).Msg("register device: non-standard response body")
			resp = &ports.RegisterDeviceResponse{Success: true}
		}
	}
	return resp, nil
}

// do performs one rate-limited request and returns the body and status.
// Transport failures, including timeouts, come back as NET_001.
func (c *Client) do(ctx context.Context, method, url, token string, payload interface{}) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, apperror.ErrNetwork(fmt.Errorf("rate limiter: %w", err))
	}

	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, apperror.InternalError(fmt.Errorf("encoding request: %w", err))
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, apperror.ErrNetwork(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(HeaderDeviceToken, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out: %w", err)
		}
		return nil, 0, apperror.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, apperror.ErrNetwork(fmt.Errorf("reading response: %w", err))
	}

	c.log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend call")
	return body, resp.StatusCode, nil
}

// sleep waits base*2^(attempt-1) plus jitter, or until ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := c.backoffBase << (attempt - 1)
	if c.backoffBase > 0 {
		backoff += rand.N(c.backoffBase/2 + 1)
	}
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
