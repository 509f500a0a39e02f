package obs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics holds the Prometheus collectors recorded by the transport
// client and the cart mirror.
type ClientMetrics struct {
	Requests         *prometheus.CounterVec
	Latency          *prometheus.HistogramVec
	NetworkErrors    prometheus.Counter
	Unauthorized     prometheus.Counter
	CartSyncApplied  prometheus.Counter
	CartSyncFailures prometheus.Counter
}

// NewClientMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound API requests by method and status class.",
		}, []string{"method", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Outbound API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		NetworkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "client",
			Name:      "network_errors_total",
			Help:      "Requests that received no response.",
		}),
		Unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "client",
			Name:      "unauthorized_total",
			Help:      "401 responses that cleared the session.",
		}),
		CartSyncApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cartsync",
			Name:      "applied_total",
			Help:      "Cart changes mirrored to the remote cart.",
		}),
		CartSyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cartsync",
			Name:      "failures_total",
			Help:      "Cart changes the remote cart rejected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency, m.NetworkErrors, m.Unauthorized, m.CartSyncApplied, m.CartSyncFailures)
	}
	return m
}

// ObserveRequest records one completed round trip.
func (m *ClientMetrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, statusClass(status)).Inc()
	m.Latency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveNetworkError records a request that got no response.
func (m *ClientMetrics) ObserveNetworkError() {
	if m == nil {
		return
	}
	m.NetworkErrors.Inc()
}

// ObserveUnauthorized records a 401 that dropped the session.
func (m *ClientMetrics) ObserveUnauthorized() {
	if m == nil {
		return
	}
	m.Unauthorized.Inc()
}

// ObserveCartSync records the outcome of one mirrored cart change.
func (m *ClientMetrics) ObserveCartSync(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CartSyncFailures.Inc()
		return
	}
	m.CartSyncApplied.Inc()
}

func statusClass(status int) string {
	if status < 100 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

// LogMetrics writes every sample gathered from g to Logger at debug level, one
// "client_metric" event per series. Short-lived processes use it in place of a
// scrape endpoint.
func LogMetrics(g prometheus.Gatherer) {
	if !Logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	families, err := g.Gather()
	if err != nil {
		Logger.Warn("metrics_gather_failed", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				attrs = append(attrs, "value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			Logger.Debug("client_metric", attrs...)
		}
	}
}
