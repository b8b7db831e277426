package api

import (
	"net/http"
	"time"

	"vspcbal/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"config": map[string]any{
			"port":               cfg.Server.Port,
			"authMode":           cfg.Auth.Mode,
			"rateRps":            cfg.Server.RateRPS,
			"rateBurst":          cfg.Server.RateBurst,
			"storeDriver":        cfg.Store.Driver,
			"hasRedis":           cfg.Redis.URL != "",
			"webhookMaxAttempts": cfg.Webhooks.MaxAttempts,
			"subscriptions":      len(cfg.Webhooks.Subscriptions),
			"balance":            cfg.Balance,
		},
	})
}
