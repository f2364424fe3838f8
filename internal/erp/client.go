package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const maxErrorMessage = 500

// Options configures a Client.
type Options struct {
	URL            string
	APIKey         string
	APISecret      string
	Timeout        time.Duration
	MaxRetries     int           // total attempts for retryable requests
	RetryBaseDelay time.Duration // first backoff interval, doubled per attempt
	RateLimit      float64       // requests per second, 0 = unlimited
	HTTPClient     *http.Client
}

// Client talks to the ERPNext REST API with token authentication.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(opts.URL, "/"),
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		http:       hc,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = time.Second
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// BaseURL returns the ERPNext base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// AuthInfo describes the configured credentials without revealing them.
func (c *Client) AuthInfo() map[string]any {
	prefix := c.apiKey
	if len(prefix) > 8 {
		prefix = prefix[:8] + "..."
	}
	return map[string]any{
		"erpnext_url":           c.baseURL,
		"api_key_configured":    c.apiKey != "",
		"api_secret_configured": c.apiSecret != "",
		"api_key_prefix":        prefix,
	}
}

// Request describes one ERP call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Retry opts a non-idempotent request into retries.
	Retry bool
}

func (r Request) retryable() bool {
	return r.Retry || r.Method == http.MethodGet || r.Method == http.MethodPut
}

// Do executes req and decodes the JSON object response.
// Retryable failures are repeated with exponential backoff when the request allows it.
func (c *Client) Do(ctx context.Context, req Request) (map[string]any, error) {
	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindInvalidInput, Message: "encode request body", Err: err}
		}
		body = b
	}

	if !req.retryable() || c.maxRetries <= 1 {
		return c.attempt(ctx, req, body)
	}

	var out map[string]any
	op := func() error {
		res, err := c.attempt(ctx, req, body)
		if err != nil {
			if !KindOf(err).Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.baseDelay << c.maxRetries
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		slog.Warn("erp request failed, retrying", "method", req.Method, "path", req.Path, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte) (map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindOf(err), Message: "rate limiter", Err: err}
		}
	}

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, rd)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("erp request", "method", req.Method, "path", req.Path)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindOf(err), Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, responseError(resp.StatusCode, data)
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &Error{Kind: KindServer, Status: resp.StatusCode, Message: "decode response: " + truncate(string(data)), Err: err}
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	out["data"] = v
	return out, nil
}

// responseError mines a Frappe error body for its exception type and message.
func responseError(status int, data []byte) *Error {
	var body struct {
		ExcType        string `json:"exc_type"`
		Exception      string `json:"exception"`
		Message        any    `json:"message"`
		ServerMessages string `json:"_server_messages"`
	}
	msg := ""
	if err := json.Unmarshal(data, &body); err == nil {
		msg = serverMessage(body.ServerMessages)
		if msg == "" {
			msg = body.Exception
		}
		if msg == "" {
			if s, ok := body.Message.(string); ok {
				msg = s
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	msg = truncate(msg)
	return &Error{
		Kind:    Classify(status, body.ExcType, msg),
		Status:  status,
		Message: msg,
		ExcType: body.ExcType,
	}
}

// serverMessage decodes Frappe's double-encoded _server_messages list.
func serverMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
		return ""
	}
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(list[0]), &m); err == nil && m.Message != "" {
		return m.Message
	}
	return list[0]
}

func truncate(s string) string {
	if len(s) > maxErrorMessage {
		return s[:maxErrorMessage]
	}
	return s
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request. POSTs are not retried.
func (c *Client) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (map[string]any, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Call invokes a whitelisted method under /api/method.
func (c *Client) Call(ctx context.Context, method string, args any, retry bool) (map[string]any, error) {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/method/" + url.PathEscape(method),
		Body:   args,
		Retry:  retry,
	})
}

// ResourcePath builds /api/resource/{doctype}[/{name}] with escaped segments.
func ResourcePath(doctype string, name ...string) string {
	p := "/api/resource/" + url.PathEscape(doctype)
	for _, n := range name {
		p += "/" + url.PathEscape(n)
	}
	return p
}

// IsNotFound reports whether err is a not_found failure.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}
