package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RebalanceRuns counts finished runs by terminal state
	RebalanceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rebalance_runs_total", Help: "Rebalancing runs by terminal state."},
		[]string{"state"},
	)
	// RebalanceMoves counts applied unit moves
	RebalanceMoves = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rebalance_moves_total", Help: "Units moved between centers."},
	)
	// RebalanceIterations records outer iterations per run
	RebalanceIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "rebalance_iterations", Help: "Outer cascade iterations per run.", Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000}},
	)
	// RebalanceDuration records wall time per run in seconds
	RebalanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "rebalance_run_duration_seconds", Help: "Rebalancing run duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// CentersExhausted counts centers marked exhausted
	CentersExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rebalance_centers_exhausted_total", Help: "Overloaded centers that could not shed any unit."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RebalanceRuns)
		Registry.MustRegister(RebalanceMoves)
		Registry.MustRegister(RebalanceIterations)
		Registry.MustRegister(RebalanceDuration)
		Registry.MustRegister(CentersExhausted)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the service registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveRun records the summary of a finished run.
func ObserveRun(state string, iterations int, elapsed time.Duration) {
	RebalanceRuns.WithLabelValues(state).Inc()
	RebalanceIterations.Observe(float64(iterations))
	RebalanceDuration.Observe(elapsed.Seconds())
}

type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Instrument records HTTP metrics. route maps a request to a low-cardinality
// path label; nil uses the raw path.
func Instrument(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if route != nil {
			path = route(r)
		}
		status := strconv.Itoa(rec.status)
		HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
