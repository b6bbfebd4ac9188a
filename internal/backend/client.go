// Package backend talks to the hosted auth and row API that owns user
// accounts, profiles and settings.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config configures a Client
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is safe for concurrent use
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *zap.Logger
}

// Error is a non-2xx answer from the backend
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: %d", e.Status)
	}
	return fmt.Sprintf("backend error: %d: %s", e.Status, e.Message)
}

// UpstreamStatus lets the HTTP layer report the backend status code
func (e *Error) UpstreamStatus() int { return e.Status }

// New creates a backend client
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		http:    httpClient,
		logger:  logger,
	}
}

type request struct {
	method  string
	path    string
	query   url.Values
	token   string
	body    any
	headers map[string]string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token := req.token
	if token == "" {
		token = c.anonKey
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, data)
		c.logger.Debug("backend call failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// decodeError understands both the auth API and the row API error shapes
func decodeError(status int, data []byte) *Error {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.Unmarshal(data, &body)

	apiErr := &Error{Status: status}
	switch {
	case body.ErrorDescription != "":
		apiErr.Message = body.ErrorDescription
	case body.Msg != "":
		apiErr.Message = body.Msg
	case body.Message != "":
		apiErr.Message = body.Message
	case body.Error != "":
		apiErr.Message = body.Error
	}
	switch {
	case body.ErrorCode != "":
		apiErr.Code = body.ErrorCode
	case body.Code != nil:
		apiErr.Code = fmt.Sprint(body.Code)
	case body.Error != "":
		apiErr.Code = body.Error
	}
	return apiErr
}
