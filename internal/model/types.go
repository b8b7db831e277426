package model

import (
	"time"

	"vspcbal/internal/balance"
	"vspcbal/internal/geo"
)

// Wire types for the HTTP API and the persisted run document.

type UnitIn struct {
	ID             string   `json:"id"`
	Weight         int      `json:"weight"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Pinned         bool     `json:"pinned,omitempty"`
	PinnedCenterID string   `json:"pinnedCenterId,omitempty"`
}

type CenterIn struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

// QuadrantGuardOverride carries a partial quadrant guard setting.
type QuadrantGuardOverride struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	CenterLat *float64 `json:"centerLat,omitempty" yaml:"centerLat,omitempty"`
	CenterLng *float64 `json:"centerLng,omitempty" yaml:"centerLng,omitempty"`
}

// BalanceOverrides is a partial balance.Config. Nil fields keep the base value.
type BalanceOverrides struct {
	Tolerance            *float64               `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	MaxRankDepth         *int                   `json:"maxRankDepth,omitempty" yaml:"maxRankDepth,omitempty"`
	RuralThreshold       *int                   `json:"ruralThreshold,omitempty" yaml:"ruralThreshold,omitempty"`
	RelaxedCeilingFactor *float64               `json:"relaxedCeilingFactor,omitempty" yaml:"relaxedCeilingFactor,omitempty"`
	MaxIterations        *int                   `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	MaxMoveDistanceMiles *float64               `json:"maxMoveDistanceMiles,omitempty" yaml:"maxMoveDistanceMiles,omitempty"`
	QuadrantGuard        *QuadrantGuardOverride `json:"quadrantGuard,omitempty" yaml:"quadrantGuard,omitempty"`
}

// Apply layers the overrides over base.
func (o *BalanceOverrides) Apply(base balance.Config) balance.Config {
	if o == nil {
		return base
	}
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&base.Tolerance, o.Tolerance)
	setI(&base.MaxRankDepth, o.MaxRankDepth)
	setI(&base.RuralThreshold, o.RuralThreshold)
	setF(&base.RelaxedCeilingFactor, o.RelaxedCeilingFactor)
	setI(&base.MaxIterations, o.MaxIterations)
	setF(&base.MaxMoveDistanceMiles, o.MaxMoveDistanceMiles)
	if q := o.QuadrantGuard; q != nil {
		if q.Enabled != nil {
			base.QuadrantGuard.Enabled = *q.Enabled
		}
		setF(&base.QuadrantGuard.CenterLat, q.CenterLat)
		setF(&base.QuadrantGuard.CenterLng, q.CenterLng)
	}
	return base
}

type RebalanceRequest struct {
	TenantID string            `json:"tenantId,omitempty"`
	Label    string            `json:"label,omitempty"`
	Units    []UnitIn          `json:"units"`
	Centers  []CenterIn        `json:"centers"`
	Config   *BalanceOverrides `json:"config,omitempty"`
}

// Records converts the request into engine input. A record without both
// coordinates is a *balance.DataError.
func (r RebalanceRequest) Records() ([]balance.UnitRecord, []balance.CenterRecord, error) {
	units := make([]balance.UnitRecord, len(r.Units))
	for i, u := range r.Units {
		if u.Lat == nil || u.Lng == nil {
			return nil, nil, &balance.DataError{Kind: "unit", ID: u.ID, Reason: "missing coordinates"}
		}
		units[i] = balance.UnitRecord{
			ID:             u.ID,
			Weight:         u.Weight,
			Location:       geo.Point(*u.Lat, *u.Lng),
			Pinned:         u.Pinned || u.PinnedCenterID != "",
			PinnedCenterID: u.PinnedCenterID,
		}
	}
	centers := make([]balance.CenterRecord, len(r.Centers))
	for i, c := range r.Centers {
		if c.Lat == nil || c.Lng == nil {
			return nil, nil, &balance.DataError{Kind: "center", ID: c.ID, Reason: "missing coordinates"}
		}
		centers[i] = balance.CenterRecord{ID: c.ID, Name: c.Name, Location: geo.Point(*c.Lat, *c.Lng)}
	}
	return units, centers, nil
}

// RunSummary is the list view of a persisted run.
type RunSummary struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenantId"`
	Label           string         `json:"label,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	DurationMs      int64          `json:"durationMs"`
	State           balance.State  `json:"state"`
	Iterations      int            `json:"iterations"`
	Moves           int            `json:"moves"`
	UnitCount       int            `json:"unitCount"`
	CenterCount     int            `json:"centerCount"`
	ReassignedCount int            `json:"reassignedCount"`
	TotalWeight     int            `json:"totalWeight"`
	Target          float64        `json:"target"`
	Band            balance.Band   `json:"band"`
	RelaxedCeiling  float64        `json:"relaxedCeiling"`
	StillOverloaded []string       `json:"stillOverloaded"`
	LoadMean        float64        `json:"loadMean"`
	LoadStdDev      float64        `json:"loadStdDev"`
	Digest          string         `json:"digest"`
	Config          balance.Config `json:"config"`
}

// Run is a complete persisted run.
type Run struct {
	RunSummary
	Units   []balance.UnitResult   `json:"units"`
	Centers []balance.CenterResult `json:"centers"`
}

// NewRun wraps an engine result for persistence.
func NewRun(id, tenantID, label string, cfg balance.Config, res *balance.Result, createdAt time.Time, elapsed time.Duration) Run {
	reassigned := 0
	for _, u := range res.Units {
		if u.Reassigned {
			reassigned++
		}
	}
	return Run{
		RunSummary: RunSummary{
			ID:              id,
			TenantID:        tenantID,
			Label:           label,
			CreatedAt:       createdAt.UTC(),
			DurationMs:      elapsed.Milliseconds(),
			State:           res.State,
			Iterations:      res.Iterations,
			Moves:           res.Moves,
			UnitCount:       len(res.Units),
			CenterCount:     len(res.Centers),
			ReassignedCount: reassigned,
			TotalWeight:     res.TotalWeight,
			Target:          res.Target,
			Band:            res.Band,
			RelaxedCeiling:  res.RelaxedCeiling,
			StillOverloaded: res.StillOverloaded,
			LoadMean:        res.LoadMean,
			LoadStdDev:      res.LoadStdDev,
			Digest:          res.Digest,
			Config:          cfg,
		},
		Units:   res.Units,
		Centers: res.Centers,
	}
}

// FilterUnits returns the unit records matching the optional filters.
func (r Run) FilterUnits(reassigned *bool, centerID string) []balance.UnitResult {
	out := []balance.UnitResult{}
	for _, u := range r.Units {
		if reassigned != nil && u.Reassigned != *reassigned {
			continue
		}
		if centerID != "" && u.AssignedCenterID != centerID {
			continue
		}
		out = append(out, u)
	}
	return out
}

type RebalanceResponse struct {
	RunID   string                 `json:"runId"`
	Summary RunSummary             `json:"summary"`
	Units   []balance.UnitResult   `json:"units"`
	Centers []balance.CenterResult `json:"centers"`
}

// Event is published on the broker and delivered to stream subscribers and webhooks.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenantId"`
	RunID    string         `json:"runId,omitempty"`
	Time     time.Time      `json:"time"`
	Data     map[string]any `json:"data,omitempty"`
}

const (
	EventRunStarted      = "run.started"
	EventCenterExhausted = "center.exhausted"
	EventRunCompleted    = "run.completed"
)
