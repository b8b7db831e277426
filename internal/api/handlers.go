package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"vspcbal/internal/model"
)

// RebalanceHandler handles POST /v1/rebalance
func (s *Server) RebalanceHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !p.CanPlan() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.RebalanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	tenant, err := validateRebalanceRequest(&req, p)
	if errors.Is(err, errTenantMismatch) {
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid rebalance request", err.Error(), r.URL.Path)
		return
	}
	cfg, err := s.effectiveConfig(r.Context(), tenant)
	if err != nil {
		writeError(w, r, "Load balance config failed", err)
		return
	}
	run, err := s.rebalance(r.Context(), tenant, req, req.Config.Apply(cfg))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, r, "Rebalance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, model.RebalanceResponse{
		RunID:   run.ID,
		Summary: run.RunSummary,
		Units:   run.Units,
		Centers: run.Centers,
	})
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeError(w, r, "List runs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunHandler handles GET and DELETE /v1/runs/{id}
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		p, ok := s.principal(w, r)
		if !ok {
			return
		}
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if err != nil {
			writeError(w, r, "Run not found", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case http.MethodDelete:
		p, ok := s.requireAdmin(w, r)
		if !ok {
			return
		}
		if err := s.Store.DeleteRun(r.Context(), p.Tenant, id); err != nil {
			writeError(w, r, "Delete run failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RunUnitsHandler handles GET /v1/runs/{id}/units?reassigned=&center=
func (s *Server) RunUnitsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var reassigned *bool
	if v := r.URL.Query().Get("reassigned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid reassigned filter", err.Error(), r.URL.Path)
			return
		}
		reassigned = &b
	}
	run, err := s.Store.GetRun(r.Context(), p.Tenant, r.PathValue("id"))
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": run.FilterUnits(reassigned, r.URL.Query().Get("center"))})
}

// RunCentersHandler handles GET /v1/runs/{id}/centers
func (s *Server) RunCentersHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	run, err := s.Store.GetRun(r.Context(), p.Tenant, r.PathValue("id"))
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": run.Centers})
}

// BalanceConfigHandler returns the effective balancing defaults for the
// caller's tenant, as JSON or as YAML with ?format=yaml.
func (s *Server) BalanceConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	cfg, err := s.effectiveConfig(r.Context(), p.Tenant)
	if err != nil {
		writeError(w, r, "Load balance config failed", err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "yaml") {
		out, err := yaml.Marshal(map[string]any{"balance": cfg})
		if err != nil {
			writeError(w, r, "Encode config failed", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(out)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
}

// AdminBalanceConfigHandler handles GET/PUT /v1/admin/balance/config
func (s *Server) AdminBalanceConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetBalanceConfig(r.Context(), p.Tenant)
		if err != nil {
			writeError(w, r, "Load balance config failed", err)
			return
		}
		if cfg == nil {
			cfg = &model.BalanceOverrides{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config *model.BalanceOverrides `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		effective := body.Config.Apply(s.Config.Balance)
		if err := effective.Validate(); err != nil {
			writeError(w, r, "Invalid balance config", err)
			return
		}
		if err := s.Store.SaveBalanceConfig(r.Context(), p.Tenant, *body.Config); err != nil {
			writeError(w, r, "Save failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "effective": effective})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// EventsStreamHandler streams the tenant's events as SSE. ?types= limits the
// stream to a comma separated list of event types.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	want := typeFilter(r.URL.Query().Get("types"))
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(p.Tenant)
	defer s.Broker.Unsubscribe(p.Tenant, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"tenantId\":%q,\"ts\":%q}\n\n", p.Tenant, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if !want(evt.Type) {
				continue
			}
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "id: %s\n", evt.ID)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}

// typeFilter returns a predicate over event types; empty accepts everything.
func typeFilter(list string) func(string) bool {
	if strings.TrimSpace(list) == "" {
		return func(string) bool { return true }
	}
	set := map[string]struct{}{}
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return func(t string) bool {
		_, ok := set[t]
		return ok
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries and DLQ

func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, r.URL.Query().Get("status"), cursor, limit)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, "Retry delivery failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeError(w, r, "List DLQ failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDLQRequeueHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, "Requeue failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}
