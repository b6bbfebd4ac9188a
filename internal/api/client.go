// Package api wraps the upstream Sentinel REST API. Every domain gets its own
// wrapper bound to its own bearer key; all of them share one HTTP client and
// one token-bucket limiter.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sentinel/internal/metrics"
)

const (
	apiVersion = "2024-01-15"
	clientID   = "sentinel-ai-webapp"

	maxErrorBody = 4 << 10
)

// StatusError is returned for any non-2xx upstream response
type StatusError struct {
	Domain string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API Error: %d", e.Domain, e.Status)
}

// UpstreamStatus exposes the HTTP status for error classification
func (e *StatusError) UpstreamStatus() int {
	return e.Status
}

// Options configures the shared upstream client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *zap.Logger

	// BreakerFailures is the number of consecutive failures that opens a
	// domain's circuit. Zero uses the default of 5.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client is the transport shared by every domain wrapper
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Collector
	logger     *zap.Logger

	breakerFailures uint32
	breakerCooldown time.Duration
}

// NewClient creates the shared upstream client
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		timeout:         opts.Timeout,
		httpClient:      opts.HTTPClient,
		limiter:         rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		breakerFailures: opts.BreakerFailures,
		breakerCooldown: opts.BreakerCooldown,
	}
}

// endpoint binds the shared client to one domain and its key
type endpoint struct {
	client  *Client
	domain  string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
}

func (c *Client) endpoint(domain, apiKey string) *endpoint {
	logger := c.logger
	settings := gobreaker.Settings{
		Name:        domain,
		MaxRequests: 1,
		Timeout:     c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Upstream circuit breaker state changed",
				zap.String("domain", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isBreakerSuccess,
	}

	return &endpoint{
		client:  c,
		domain:  domain,
		apiKey:  apiKey,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// isBreakerSuccess keeps client-side errors and caller cancellation from
// counting against the upstream.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status < http.StatusInternalServerError
	}
	return false
}

type rawResponse struct {
	body        []byte
	contentType string
}

// do performs one upstream call and returns the raw body of a 2xx response
func (e *endpoint) do(ctx context.Context, operation, method, path string, payload any) (*rawResponse, error) {
	start := time.Now()

	if err := e.client.limiter.Wait(ctx); err != nil {
		e.client.metrics.ObserveUpstream(e.domain, operation, "rejected", time.Since(start))
		return nil, fmt.Errorf("%s rate limit wait: %w", e.domain, err)
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.send(ctx, method, path, payload)
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		e.client.logger.Debug("Upstream call failed",
			zap.String("domain", e.domain),
			zap.String("operation", operation),
			zap.Error(err))
	}
	e.client.metrics.ObserveUpstream(e.domain, operation, outcome, time.Since(start))

	if err != nil {
		return nil, err
	}
	return result.(*rawResponse), nil
}

func (e *endpoint) send(ctx context.Context, method, path string, payload any) (*rawResponse, error) {
	if e.client.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.client.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", e.domain, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.client.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", e.domain, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("X-API-Version", apiVersion)
	req.Header.Set("X-Client-ID", clientID)

	resp, err := e.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", e.domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Domain: e.domain, Status: resp.StatusCode}
		snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return nil, errors.Join(statusErr, fmt.Errorf("failed to read %s error body: %w", e.domain, err))
		}
		statusErr.Body = string(snippet)
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", e.domain, err)
	}
	return &rawResponse{body: data, contentType: resp.Header.Get("Content-Type")}, nil
}

// getJSON and postJSON return the decoded upstream payload without any
// schema validation. An empty 2xx body decodes to JSON null.
func (e *endpoint) getJSON(ctx context.Context, operation, path string) (json.RawMessage, error) {
	return e.call(ctx, operation, http.MethodGet, path, nil)
}

func (e *endpoint) postJSON(ctx context.Context, operation, path string, payload any) (json.RawMessage, error) {
	return e.call(ctx, operation, http.MethodPost, path, payload)
}

func (e *endpoint) call(ctx context.Context, operation, method, path string, payload any) (json.RawMessage, error) {
	resp, err := e.do(ctx, operation, method, path, payload)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%s %s returned invalid JSON", e.domain, operation)
	}
	return json.RawMessage(trimmed), nil
}

// segment escapes a caller-supplied id for use as a single path segment
func segment(id string) string {
	return url.PathEscape(id)
}
