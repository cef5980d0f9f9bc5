// Package api is the REST client for the ride backend. Authentication rides
// on a session cookie, so every Client owns a cookie jar that the real-time
// channel reuses when it dials.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-client/internal/observability"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrInvalidInput is returned before any request is made when a form
	// value fails local validation.
	ErrInvalidInput = errors.New("invalid input")
)

// HTTPError is returned for any non-2xx backend response.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Status)
}

func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout, Jar: jar},
		Logger:  logger,
	}, nil
}

// Jar exposes the session cookies so other transports can authenticate.
func (c *Client) Jar() http.CookieJar { return c.HTTP.Jar }

// request describes one backend call. route is the templated path used as
// the metrics label so ids do not explode label cardinality.
type request struct {
	method string
	path   string
	route  string
	query  url.Values
	body   any
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if r.route == "" {
		r.route = r.path
	}
	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", r.route, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return err
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	observability.APIRequestDuration.WithLabelValues(r.method, r.route).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.APIRequestsTotal.WithLabelValues(r.method, r.route, "error").Inc()
		return fmt.Errorf("%s %s: %w", r.method, r.route, err)
	}
	defer resp.Body.Close()
	observability.APIRequestsTotal.WithLabelValues(r.method, r.route, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", r.method, r.route, err)
	}
	c.Logger.Debug("api_call", "method", r.method, "route", r.route, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(), "request_id", reqID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Method: r.method, Path: r.route, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", r.method, r.route, err)
	}
	return nil
}

// errorMessage pulls a human readable message out of the backend's error
// body, which is either {"message": ...}, {"error": ...} or plain text.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
