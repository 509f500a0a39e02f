package transport

import (
	"context"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/go-faster/errors"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

// RetryConfig controls retries of idempotent GET requests.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = 100 * time.Millisecond
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 2 * time.Second
	}
	if r.Multiplier < 1 {
		r.Multiplier = 2
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		r.Jitter = 0.1
	}
	return r
}

func (r RetryConfig) backoff(attempt int) time.Duration {
	b := float64(r.InitialBackoff) * math.Pow(r.Multiplier, float64(attempt-1))
	if b > float64(r.MaxBackoff) {
		b = float64(r.MaxBackoff)
	}
	if r.Jitter > 0 {
		b += b * r.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(b)
}

// shouldRetry reports whether a GET outcome is transient. An open breaker and
// a cancelled context are final.
func (r RetryConfig) shouldRetry(resp *response, err error) bool {
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		var opErr *net.OpError
		return errors.As(err, &opErr)
	}
	if resp == nil {
		return false
	}
	switch resp.status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// statusError carries a 5xx response through the breaker so it counts as a
// failure while the caller still sees the response.
type statusError struct {
	resp *response
}

func (e *statusError) Error() string {
	return "server error " + strconv.Itoa(e.resp.status)
}

func newBreaker(failures int, timeout time.Duration) *gobreaker.CircuitBreaker {
	if failures <= 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.Logger.Warn("circuit_breaker_state", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// backendMessage extracts a display message from an error body. The backend
// may answer {"message": ...}, {"detail": ...} or {"error": ...}; detail may
// also be a list of validation errors with a "msg" field.
func backendMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"message", "detail", "error", "detail.0.msg"} {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String {
			if s := strings.TrimSpace(r.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
