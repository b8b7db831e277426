package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/balance"
)

func ptr[T any](v T) *T { return &v }

func TestBalanceOverrides_Apply(t *testing.T) {
	base := balance.DefaultConfig()
	var none *BalanceOverrides
	assert.Equal(t, base, none.Apply(base))

	o := &BalanceOverrides{
		Tolerance:     ptr(0.1),
		MaxIterations: ptr(5),
		QuadrantGuard: &QuadrantGuardOverride{Enabled: ptr(true), CenterLat: ptr(39.7)},
	}
	got := o.Apply(base)
	assert.InDelta(t, 0.1, got.Tolerance, 1e-12)
	assert.Equal(t, 5, got.MaxIterations)
	assert.Equal(t, base.MaxRankDepth, got.MaxRankDepth)
	assert.True(t, got.QuadrantGuard.Enabled)
	assert.InDelta(t, 39.7, got.QuadrantGuard.CenterLat, 1e-12)
	assert.Zero(t, got.QuadrantGuard.CenterLng)
}

func TestNewRun_FromResult(t *testing.T) {
	req := RebalanceRequest{
		Units: []UnitIn{
			{ID: "u500", Weight: 500, Lat: ptr(39.70), Lng: ptr(-104.91)},
			{ID: "u400", Weight: 400, Lat: ptr(39.70), Lng: ptr(-104.92)},
			{ID: "u300", Weight: 300, Lat: ptr(39.70), Lng: ptr(-104.93)},
			{ID: "u200", Weight: 200, Lat: ptr(39.70), Lng: ptr(-104.94)},
			{ID: "u100", Weight: 100, Lat: ptr(39.70), Lng: ptr(-104.95), PinnedCenterID: "A"},
		},
		Centers: []CenterIn{
			{ID: "A", Lat: ptr(39.70), Lng: ptr(-104.90)},
			{ID: "B", Lat: ptr(39.70), Lng: ptr(-104.80)},
			{ID: "C", Lat: ptr(39.70), Lng: ptr(-104.70)},
		},
	}
	units, centers, err := req.Records()
	require.NoError(t, err)
	require.True(t, units[4].Pinned, "a pinned center implies pinning")
	assert.InDelta(t, -104.91, units[0].Location.Lon(), 1e-12)

	cfg := balance.DefaultConfig()
	res, err := balance.Run(context.Background(), units, centers, cfg)
	require.NoError(t, err)

	run := NewRun("r1", "t1", "demo", cfg, res, time.Unix(100, 0), 1500*time.Microsecond)
	assert.Equal(t, 2, run.ReassignedCount)
	assert.Equal(t, 5, run.UnitCount)
	assert.Equal(t, int64(1), run.DurationMs)
	assert.Equal(t, res.Digest, run.Digest)

	yes, no := true, false
	assert.Len(t, run.FilterUnits(&yes, ""), 2)
	assert.Len(t, run.FilterUnits(&no, ""), 3)
	only := run.FilterUnits(nil, "C")
	require.Len(t, only, 1)
	assert.Equal(t, "u400", only[0].ID)
}

func TestRecords_MissingCoordinates(t *testing.T) {
	cases := []struct {
		name     string
		req      RebalanceRequest
		kind, id string
	}{
		{"unit without lat", RebalanceRequest{
			Units:   []UnitIn{{ID: "u1", Weight: 10, Lng: ptr(-104.9)}},
			Centers: []CenterIn{{ID: "A", Lat: ptr(39.7), Lng: ptr(-104.9)}},
		}, "unit", "u1"},
		{"unit without lng", RebalanceRequest{
			Units:   []UnitIn{{ID: "u2", Weight: 10, Lat: ptr(39.7)}},
			Centers: []CenterIn{{ID: "A", Lat: ptr(39.7), Lng: ptr(-104.9)}},
		}, "unit", "u2"},
		{"center without coordinates", RebalanceRequest{
			Units:   []UnitIn{{ID: "u1", Weight: 10, Lat: ptr(39.7), Lng: ptr(-104.9)}},
			Centers: []CenterIn{{ID: "A"}},
		}, "center", "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.req.Records()
			var de *balance.DataError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.kind, de.Kind)
			assert.Equal(t, tc.id, de.ID)
			assert.ErrorIs(t, err, balance.ErrInvalidData)
		})
	}

	// Zero is a real coordinate, not a missing one.
	req := RebalanceRequest{
		Units:   []UnitIn{{ID: "u1", Weight: 10, Lat: ptr(0.0), Lng: ptr(0.0)}},
		Centers: []CenterIn{{ID: "A", Lat: ptr(0.0), Lng: ptr(0.1)}},
	}
	units, _, err := req.Records()
	require.NoError(t, err)
	assert.Zero(t, units[0].Location.Lat())
}
