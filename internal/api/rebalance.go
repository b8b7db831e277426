package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vspcbal/internal/balance"
	"vspcbal/internal/metrics"
	"vspcbal/internal/model"
)

// eventObserver collects exhausted centers while the cascade runs. The
// controller calls it synchronously, so it only buffers; the events are
// published once the run returns.
type eventObserver struct {
	balance.NopObserver
	s      *Server
	tenant string
	runID  string
	events *[]model.Event
}

func (o eventObserver) OnCenterExhausted(centerID string, weight int) {
	*o.events = append(*o.events, o.s.newEvent(model.EventCenterExhausted, o.tenant, o.runID, map[string]any{
		"centerId": centerID,
		"weight":   weight,
	}))
}

func (s *Server) newEvent(typ, tenant, runID string, data map[string]any) model.Event {
	return model.Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     typ,
		TenantID: tenant,
		RunID:    runID,
		Time:     time.Now().UTC(),
		Data:     data,
	}
}

// publish sends ev to stream subscribers and queues matching webhooks.
func (s *Server) publish(ctx context.Context, ev model.Event) {
	s.Broker.Publish(ev.TenantID, ev)
	if _, err := s.Pub.Emit(ctx, ev); err != nil {
		s.Log.Error("event_emit_failed", "event", ev.Type, "run", ev.RunID, "err", err)
	}
}

// effectiveConfig layers the tenant's stored defaults over the file config.
func (s *Server) effectiveConfig(ctx context.Context, tenant string) (balance.Config, error) {
	overrides, err := s.Store.GetBalanceConfig(ctx, tenant)
	if err != nil {
		return balance.Config{}, err
	}
	return overrides.Apply(s.Config.Balance), nil
}

// rebalance runs the engine for one request and persists the result.
func (s *Server) rebalance(ctx context.Context, tenant string, req model.RebalanceRequest, cfg balance.Config) (model.Run, error) {
	units, centers, err := req.Records()
	if err != nil {
		return model.Run{}, err
	}
	runID := uuid.NewString()
	log := s.Log.With("run", runID, "tenant", tenant)
	s.publish(ctx, s.newEvent(model.EventRunStarted, tenant, runID, map[string]any{
		"label":   req.Label,
		"units":   len(req.Units),
		"centers": len(req.Centers),
	}))

	var exhausted []model.Event
	start := time.Now()
	res, err := balance.Run(ctx, units, centers, cfg,
		balance.WithLogger(log),
		balance.WithObserver(metrics.EngineObserver{}),
		balance.WithObserver(eventObserver{s: s, tenant: tenant, runID: runID, events: &exhausted}),
	)
	elapsed := time.Since(start)
	for _, ev := range exhausted {
		s.publish(ctx, ev)
	}
	if err != nil {
		log.Warn("rebalance_failed", "err", err)
		return model.Run{}, err
	}
	metrics.ObserveRun(res.State.String(), res.Iterations, elapsed)

	run := model.NewRun(runID, tenant, req.Label, cfg, res, start, elapsed)
	if err := s.Store.SaveRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("save run: %w", err)
	}
	s.publish(ctx, s.newEvent(model.EventRunCompleted, tenant, runID, map[string]any{
		"state":           res.State.String(),
		"iterations":      res.Iterations,
		"moves":           res.Moves,
		"stillOverloaded": res.StillOverloaded,
		"digest":          res.Digest,
	}))
	log.Info("rebalance_done", "state", res.State.String(), "moves", res.Moves, "elapsed_ms", elapsed.Milliseconds())
	return run, nil
}
