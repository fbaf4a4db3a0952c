// Package api is the typed gateway to the feed service REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/session"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
	Session    *session.Session
	// OnUnauthorized runs after any request answered with 401.
	OnUnauthorized func(ctx context.Context, err error)
	Logger         *observability.Logger
}

// Client issues requests to the feed service. It never retries.
type Client struct {
	baseURL        string
	http           *http.Client
	session        *session.Session
	onUnauthorized func(context.Context, error)
	log            *observability.APILogger
	metrics        *observability.APIMetrics
}

// New creates a client from opts.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           hc,
		session:        opts.Session,
		onUnauthorized: opts.OnUnauthorized,
		log:            observability.NewAPILogger(opts.Logger),
		metrics:        observability.NewAPIMetrics(),
	}
}

// BaseURL returns the service root requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the session the client reads its credential from.
func (c *Client) Session() *session.Session {
	return c.session
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do sends one request and returns the response body of a 2xx answer.
// Any other outcome is a *models.AppError.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	return c.do(ctx, method, path, path, body, contentType)
}

// do is Do with a route template used to label metrics and spans.
func (c *Client) do(ctx context.Context, method, route, path string, body io.Reader, contentType string) ([]byte, error) {
	ctx, requestID := observability.EnsureCorrelationID(ctx)

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, models.NewTransportError(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	span, ctx := observability.StartAPISpan(ctx, method, route, req.Header)
	defer span.End()
	req = req.WithContext(ctx)

	track := c.metrics.Track(route)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		track(0)
		appErr := models.NewTransportError(err)
		span.SetError(appErr)
		c.log.LogError(ctx, method, route, appErr)
		return nil, appErr
	}
	defer func() { _ = resp.Body.Close() }()

	track(resp.StatusCode)
	span.SetStatusCode(resp.StatusCode)
	c.log.LogRequest(ctx, method, route, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		appErr := models.NewHTTPError(resp.StatusCode, errorMessage(raw))
		span.SetError(appErr)
		c.log.LogError(ctx, method, route, appErr)
		if appErr.Code == models.CodeUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, appErr)
		}
		return nil, appErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		appErr := models.NewTransportError(err)
		span.SetError(appErr)
		return nil, appErr
	}
	return data, nil
}

// errorMessage extracts the server's message from an error body.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return string(raw)
}

func (c *Client) sendJSON(ctx context.Context, method, route, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", route, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	data, err := c.do(ctx, method, route, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", route, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, route, path string, out interface{}) error {
	return c.sendJSON(ctx, http.MethodGet, route, path, nil, out)
}

func decode(route string, data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", route, err)
	}
	return nil
}
