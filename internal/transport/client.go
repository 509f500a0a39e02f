// Package transport wraps outbound HTTP calls to the storefront API. It
// attaches the bearer token from the session store, drops the session on 401
// and separates "no response" failures from backend rejections.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 8 << 20

// Default display messages for cross-cutting failures.
const (
	MsgNetwork      = "Erreur de réseau"
	MsgUnauthorized = "Session expirée, veuillez vous reconnecter"
)

type ctxKey int

const ctxKeyCredentials ctxKey = iota

// WithCredentials marks a request that carries its own credentials, such as a
// login form. It is sent without the stored bearer token, and a 401 answer
// leaves the session and the unauthorized callback untouched.
func WithCredentials(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyCredentials, true)
}

func carriesCredentials(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyCredentials).(bool)
	return v
}

// TokenStore is the slice of the session store the transport needs.
type TokenStore interface {
	Token(ctx context.Context) string
	Clear(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Session TokenStore
	// OnUnauthorized is called with LoginPath after a 401 cleared the session.
	OnUnauthorized func(loginPath string)
	LoginPath      string

	HTTPClient *http.Client
	Metrics    *obs.ClientMetrics

	// RateLimit is requests per second; zero disables throttling.
	RateLimit rate.Limit
	Burst     int

	BreakerFailures int
	BreakerTimeout  time.Duration

	Retry RetryConfig
}

// Client performs JSON requests against the storefront API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	session        TokenStore
	onUnauthorized func(string)
	loginPath      string
	metrics        *obs.ClientMetrics
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
	retry          RetryConfig
}

// New creates a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	c := &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient:     httpClient,
		session:        opts.Session,
		onUnauthorized: opts.OnUnauthorized,
		loginPath:      loginPath,
		metrics:        opts.Metrics,
		breaker:        newBreaker(opts.BreakerFailures, opts.BreakerTimeout),
		retry:          opts.Retry.withDefaults(),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return c
}

// SetOnUnauthorized replaces the 401 callback.
func (c *Client) SetOnUnauthorized(fn func(loginPath string)) { c.onUnauthorized = fn }

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// response is a fully read reply.
type response struct {
	status int
	body   []byte
	authed bool
}

// Do sends one request. Failures are *apierr.Error values: KindNetwork when
// no response arrived, KindAuth on 401, KindNotFound on 404 and KindService
// for every other non-2xx status. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retry.MaxRetries
	}

	var (
		resp *response
		err  error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if werr := sleepCtx(ctx, c.retry.backoff(attempt)); werr != nil {
				return c.networkError(method, path, werr)
			}
		}
		resp, err = c.roundTrip(ctx, method, path, payload)
		if !c.retry.shouldRetry(resp, err) {
			break
		}
	}
	if err != nil {
		return c.networkError(method, path, err)
	}
	return c.handle(ctx, method, path, resp, out)
}

// roundTrip sends the request through the limiter and the circuit breaker.
// A non-nil error means no response was received.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}
	}
	v, err := c.breaker.Execute(func() (any, error) {
		r, err := c.send(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if r.status >= http.StatusInternalServerError {
			return r, &statusError{resp: r}
		}
		return r, nil
	})
	var se *statusError
	if errors.As(err, &se) {
		return se.resp, nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*response), nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	authed := false
	if c.session != nil && !carriesCredentials(ctx) {
		if token := c.session.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			authed = true
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	lat := time.Since(start)
	c.metrics.ObserveRequest(method, httpResp.StatusCode, lat)
	obs.Logger.Debug("api_request",
		"method", method,
		"path", path,
		"status", httpResp.StatusCode,
		"latency_ms", float64(lat.Microseconds())/1000.0,
		"request_id", reqID,
	)
	return &response{status: httpResp.StatusCode, body: data, authed: authed}, nil
}

func (c *Client) handle(ctx context.Context, method, path string, resp *response, out any) error {
	if resp.status >= 200 && resp.status < 300 {
		if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return &apierr.Error{Kind: apierr.KindService, Status: resp.status, Err: errors.Wrap(err, "decode response")}
		}
		return nil
	}

	detail := backendMessage(resp.body)
	var e *apierr.Error
	switch resp.status {
	case http.StatusUnauthorized:
		if !carriesCredentials(ctx) {
			c.dropSession(ctx, method, path, resp.authed)
		}
		msg := detail
		if msg == "" {
			msg = MsgUnauthorized
		}
		e = apierr.Auth(msg)
	case http.StatusNotFound:
		e = apierr.NotFound(detail)
	default:
		e = apierr.Service(resp.status, detail)
	}
	e.Detail = detail
	return e
}

// dropSession clears the stored credentials. The host is only notified when
// the rejected request carried a token; an anonymous 401 (a failed login) has
// no session to expire.
func (c *Client) dropSession(ctx context.Context, method, path string, authed bool) {
	c.metrics.ObserveUnauthorized()
	obs.Logger.Info("unauthorized_response", "method", method, "path", path)
	if c.session != nil {
		if err := c.session.Clear(ctx); err != nil {
			obs.Logger.Error("session_clear_failed", "error", err)
		}
	}
	if authed && c.onUnauthorized != nil {
		c.onUnauthorized(c.loginPath)
	}
}

func (c *Client) networkError(method, path string, err error) error {
	c.metrics.ObserveNetworkError()
	obs.Logger.Warn("network_error", "method", method, "path", path, "error", err)
	return apierr.Network(err, MsgNetwork)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
