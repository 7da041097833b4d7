package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	authAttempts     *prometheus.CounterVec
	challengesIssued *prometheus.CounterVec
	challengesUsed   *prometheus.CounterVec
	feedSubscribers  prometheus.Gauge
	feedErrors       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Sign-in attempts by method and result",
		}, []string{"method", "result"}),
		challengesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_challenges_issued_total",
			Help: "Verification codes and reset tokens issued",
		}, []string{"kind"}),
		challengesUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_challenges_consumed_total",
			Help: "Challenge consumption attempts by kind and result",
		}, []string{"kind", "result"}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "device_feed_subscribers",
			Help: "Open device event feed subscriptions",
		}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "device_feed_read_errors_total",
			Help: "Device registry reads that failed during a feed tick",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.authAttempts,
		m.challengesIssued,
		m.challengesUsed,
		m.feedSubscribers,
		m.feedErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AuthAttempt(method, result string) {
	m.authAttempts.WithLabelValues(method, result).Inc()
}

func (m *Metrics) ChallengeIssued(kind string) {
	m.challengesIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChallengeConsumed(kind, result string) {
	m.challengesUsed.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) FeedSubscribed()   { m.feedSubscribers.Inc() }
func (m *Metrics) FeedUnsubscribed() { m.feedSubscribers.Dec() }
func (m *Metrics) FeedReadError()    { m.feedErrors.Inc() }

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline on the
// underlying writer for streaming responses.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed by the websocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		path := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
