package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	"vspcbal/internal/auth"
	"vspcbal/internal/config"
	"vspcbal/internal/logger"
	"vspcbal/internal/metrics"
	"vspcbal/internal/store"
	"vspcbal/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Config *config.Config
	Log    *slog.Logger

	limiters *xsync.Map[string, *clientLimiter] // "tenant:" or "ip:" key -> bucket
	started  time.Time
}

// limiterIdle is how long a bucket may go unused before the sweeper drops it.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewServer opens the configured store and broker. Without REDIS_URL events
// stay in process.
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis, log)
		if err != nil {
			log.Warn("redis_broker_unavailable", "err", err)
		} else {
			broker = rb
		}
	}
	return New(cfg, st, broker, log), nil
}

// New wires a Server around existing dependencies.
func New(cfg *config.Config, st store.Store, broker EventBroker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Store:    st,
		Pub:      webhooks.NewPublisher(st, cfg.Webhooks.Subscriptions, log),
		Auth:     auth.NewVerifier(cfg.Auth),
		Broker:   broker,
		Config:   cfg,
		Log:      log,
		limiters: xsync.NewMap[string, *clientLimiter](),
		started:  time.Now(),
	}
}

// Routes returns the full handler with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Rebalancing
	mux.HandleFunc("POST /v1/rebalance", s.RebalanceHandler)
	mux.HandleFunc("GET /v1/runs", s.RunsHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.RunHandler)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.RunHandler)
	mux.HandleFunc("GET /v1/runs/{id}/units", s.RunUnitsHandler)
	mux.HandleFunc("GET /v1/runs/{id}/centers", s.RunCentersHandler)

	// Balancing defaults
	mux.HandleFunc("GET /v1/balance/config", s.BalanceConfigHandler)
	mux.HandleFunc("/v1/admin/balance/config", s.AdminBalanceConfigHandler)

	// Event streams
	mux.HandleFunc("GET /v1/events/stream", s.EventsStreamHandler)
	mux.HandleFunc("GET /v1/ws", s.WSHandler)

	// Webhook admin
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("POST /v1/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
	mux.HandleFunc("GET /v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("POST /v1/admin/webhook-dlq/{id}/requeue", s.WebhookDLQRequeueHandler)

	// Health, docs, debug
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = metrics.Instrument(routeLabel, h)
	h = logger.AccessMiddleware(s.Log)(h)
	return h
}

// routeLabel uses the matched mux pattern to keep metric labels bounded.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

// rateLimit applies a token bucket per tenant, or per client host for
// callers without a valid principal. RateRPS 0 disables it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	rps := s.Config.Server.RateRPS
	if rps <= 0 {
		return next
	}
	burst := s.Config.Server.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientHost(r)
		if p, err := s.getPrincipal(r); err == nil {
			key = "tenant:" + p.Tenant
		}
		cl, ok := s.limiters.Load(key)
		if !ok {
			cl, _ = s.limiters.LoadOrStore(key, &clientLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)})
		}
		cl.lastSeen.Store(time.Now().UnixNano())
		if !cl.lim.Allow() {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientHost strips the port from the remote address so every connection
// from one host shares a bucket.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sweepLimiters drops buckets unused since before cutoff and returns how
// many were removed.
func (s *Server) sweepLimiters(cutoff time.Time) int {
	n := 0
	s.limiters.Range(func(key string, cl *clientLimiter) bool {
		if cl.lastSeen.Load() < cutoff.UnixNano() {
			s.limiters.Delete(key)
			n++
		}
		return true
	})
	return n
}

// RunLimiterSweeper evicts idle rate limit buckets until ctx is done.
func (s *Server) RunLimiterSweeper(ctx context.Context) {
	t := time.NewTicker(limiterIdle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.sweepLimiters(now.Add(-limiterIdle)); n > 0 {
				s.Log.Debug("rate_limiters_swept", "removed", n)
			}
		}
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.Webhooks, s.Log)
}

func (s *Server) Close() error {
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	return s.Store.Close()
}
