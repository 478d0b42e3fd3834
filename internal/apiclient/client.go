// Package apiclient talks to the quiz REST backend. Client is the shared request wrapper
// used by every call; Backend implements ports.AuthBackend on top of it.
package apiclient

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
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	apperrors "github.com/target/quiz-ui/internal/errors"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"
)

// HeaderSource supplies headers merged into every request, typically the session
// store's Authorization header.
type HeaderSource interface {
	AuthorizationHeader() http.Header
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Headers    HeaderSource
	Logger     *slog.Logger
}

// Client sends JSON requests to the backend, unwraps the {ok, data} envelope and
// reports 401 responses to the registered unauthorized handler.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	headers HeaderSource
	logger  *slog.Logger

	onUnauthorized func(ctx context.Context, credential string)
}

// New builds a Client. A cookie jar is installed when the supplied http.Client has none
// so cookie-based refresh works across calls.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base url must be http or https, got %q", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, jarErr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jarErr != nil {
			return nil, fmt.Errorf("create cookie jar: %w", jarErr)
		}
		hc.Jar = jar
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{baseURL: base, http: hc, headers: cfg.Headers, logger: logger}, nil
}

// SetHeaderSource replaces the source of per-request headers.
func (c *Client) SetHeaderSource(h HeaderSource) { c.headers = h }

// SetUnauthorizedHandler registers fn to run whenever the backend answers 401. fn gets
// the bearer credential the rejected request carried, empty when it had none.
func (c *Client) SetUnauthorizedHandler(fn func(ctx context.Context, credential string)) {
	c.onUnauthorized = fn
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// HTTPClient exposes the underlying client, cookie jar included.
func (c *Client) HTTPClient() *http.Client { return c.http }

// ApplyHeaders merges the session headers and a request id into h. Existing request ids
// are preserved.
func (c *Client) ApplyHeaders(h http.Header) {
	if c.headers != nil {
		for k, vs := range c.headers.AuthorizationHeader() {
			h.Del(k)
			for _, v := range vs {
				h.Add(k, v)
			}
		}
	}
	if h.Get(RequestIDHeader) == "" {
		h.Set(RequestIDHeader, uuid.NewString())
	}
}

// ReportStatus runs the unauthorized handler when status is 401. sent holds the headers
// of the request that got the answer.
func (c *Client) ReportStatus(ctx context.Context, status int, sent http.Header) {
	if status == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(ctx, BearerToken(sent))
	}
}

// BearerToken extracts the credential from an Authorization: Bearer header.
func BearerToken(h http.Header) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Result is a successful, unwrapped backend response.
type Result struct {
	Status  int
	Data    json.RawMessage
	Message string
}

// StatusError is a response the backend rejected: non-2xx, or 2xx with ok:false.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// ClientError reports whether the rejection is attributable to the request (4xx or ok:false).
func (e *StatusError) ClientError() bool {
	return e.Status < http.StatusInternalServerError
}

type requestOptions struct {
	skipUnauthorized bool
}

// RequestOption customizes a single Do call.
type RequestOption func(*requestOptions)

// WithoutUnauthorizedHook keeps a 401 from this request from reaching the
// unauthorized handler. Used by calls made while signed out.
func WithoutUnauthorizedHook() RequestOption {
	return func(o *requestOptions) { o.skipUnauthorized = true }
}

// Do sends body as JSON (when non-nil) to path and unwraps the response envelope.
// Transport failures are returned as network AppErrors; rejections as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Result, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Network(err, fmt.Sprintf("%s %s failed", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(RequestIDHeader),
		"duration", time.Since(start))

	if !o.skipUnauthorized {
		c.ReportStatus(ctx, resp.StatusCode, req.Header)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Network(err, fmt.Sprintf("read %s response", path))
	}
	return unwrapEnvelope(resp, raw)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	target := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.ApplyHeaders(req.Header)
	return req, nil
}

type envelope struct {
	OK      *bool           `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func unwrapEnvelope(resp *http.Response, raw []byte) (*Result, error) {
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	failed := resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && env.OK != nil && !*env.OK)
	if failed {
		return nil, &StatusError{Status: resp.StatusCode, Message: failureMessage(env, resp)}
	}
	if decodeErr != nil && len(bytes.TrimSpace(raw)) > 0 {
		return nil, apperrors.Network(decodeErr, "decode backend response")
	}

	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage(raw)
	}
	return &Result{Status: resp.StatusCode, Data: data, Message: env.Message}, nil
}

func failureMessage(env envelope, resp *http.Response) string {
	if msg := strings.TrimSpace(env.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(env.Message); msg != "" {
		return msg
	}
	if msg := detailMessage(env.Detail); msg != "" {
		return msg
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// detailMessage reads FastAPI-style details: either a string or a list of {msg}.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
