// Package backend is the HTTP client for the POS REST API.
package backend

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

	"github.com/smallbiznis/kasira/internal/config"
	obscontext "github.com/smallbiznis/kasira/internal/observability/context"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/observability/tracing"
	"github.com/smallbiznis/kasira/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	HeaderOrgID        = "x-org-id"
	HeaderOrgSubdomain = "x-org-subdomain"

	maxErrorBody = 64 << 10
)

var Module = fx.Module("backend",
	fx.Provide(NewClient),
)

// ErrDecode marks a 2xx response whose body could not be decoded.
var ErrDecode = errors.New("backend_decode_failed")

// Client issues JSON requests against the backend with bounded timeouts.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.Config, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.Backend.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Backend.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Transport: &tracing.Transport{}},
		timeout: timeout,
		log:     log.Named("backend"),
	}, nil
}

// BaseURL returns a copy of the backend root URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Transport exposes the tracing round tripper used by the client.
func (c *Client) Transport() http.RoundTripper {
	return c.http.Transport
}

// Timeout is the per-call bound applied on top of the caller's context.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// RequestOption decorates an outgoing request.
type RequestOption func(*http.Request)

// WithBearer attaches an Authorization header when token is non-empty.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		if token = strings.TrimSpace(token); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		if strings.TrimSpace(value) != "" {
			r.Header.Set(key, value)
		}
	}
}

// Get performs a GET and decodes the response data into out.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post performs a JSON POST and decodes the response data into out.
func (c *Client) Post(ctx context.Context, path string, in any, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Do sends a request and decodes the envelope. Non-2xx responses return *Error.
func (c *Client) Do(ctx context.Context, method, path string, in any, out any, opts ...RequestOption) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(logger.HeaderRequestID, requestID)
	}
	correlation.SetHeader(ctx, req.Header)
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithContext(ctx, c.log).Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(tracing.SafeError(err)),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logger.WithContext(ctx, c.log).Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
