package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/geo"
)

func fourCenters() []CenterRecord {
	return append(lineCenters(), center("D", 39.70, -104.60))
}

// twoClusterUnits puts four 300-weight units west of A and four east of D.
func twoClusterUnits() []UnitRecord {
	return []UnitRecord{
		unit("a1", 300, 39.70, -104.91),
		unit("a2", 300, 39.70, -104.92),
		unit("a3", 300, 39.70, -104.93),
		unit("a4", 300, 39.70, -104.94),
		unit("d1", 300, 39.70, -104.59),
		unit("d2", 300, 39.70, -104.58),
		unit("d3", 300, 39.70, -104.57),
		unit("d4", 300, 39.70, -104.56),
	}
}

func TestController_TwoOverloadedCenters(t *testing.T) {
	cfg := DefaultConfig()
	l := prepare(t, twoClusterUnits(), fourCenters(), cfg)
	obs := &recordingObserver{}
	out, err := NewController(l, NewSelector(cfg), cfg, WithObserver(obs)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Converged, out.State)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 4, out.Moves)
	require.Len(t, obs.iterations, 2)
	assert.Equal(t, "A", obs.iterations[0].CenterID, "ties go to the lowest id")
	assert.Equal(t, "D", obs.iterations[1].CenterID)

	for id, want := range map[string]string{"a1": "B", "a2": "B", "d1": "C", "d2": "C", "a3": "A", "d4": "D"} {
		u, ok := l.Unit(id)
		require.True(t, ok)
		assert.Equal(t, want, u.AssignedCenterID, id)
	}
	require.NoError(t, l.CheckInvariants())
}

// Convergence means no center is above the band. A center left below the
// band does not keep the cascade running.
func TestController_ConvergedWithUnderloadedCenter(t *testing.T) {
	var units []UnitRecord
	for _, c := range lineCenters() {
		w := 150
		if c.ID == "C" {
			w = 75
		}
		for j := 0; j < 4; j++ {
			units = append(units, unit(c.ID+string(rune('1'+j)), w, c.Location.Lat(), c.Location.Lon()-0.001*float64(j+1)))
		}
	}
	res, err := Run(context.Background(), units, lineCenters(), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, Converged, res.State)
	assert.Zero(t, res.Iterations)
	assert.Zero(t, res.Moves)
	assert.InDelta(t, 375, res.Band.Low, 1e-9)
	assert.InDelta(t, 625, res.Band.High, 1e-9)
	assert.Equal(t, map[string]int{"A": 600, "B": 600, "C": 300}, weights(res))
	for _, c := range res.Centers {
		want := Balanced
		if c.ID == "C" {
			want = Underloaded
		}
		assert.Equal(t, want, c.Load, c.ID)
		assert.False(t, c.Rural, c.ID)
	}
}

func TestController_IterationLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	l := prepare(t, twoClusterUnits(), fourCenters(), cfg)
	out, err := NewController(l, NewSelector(cfg), cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, IterationLimitReached, out.State)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, []string{"D"}, out.StillOverloaded)
}

func TestController_StalledByDistanceCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMoveDistanceMiles = 1
	units := []UnitRecord{
		unit("a1", 100, 39.70, -104.91),
		unit("a2", 100, 39.70, -104.92),
		unit("a3", 100, 39.70, -104.93),
		unit("a4", 100, 39.70, -104.94),
		unit("b1", 1, 39.70, -104.79),
		unit("b2", 1, 39.70, -104.78),
		unit("b3", 1, 39.70, -104.77),
		unit("b4", 1, 39.70, -104.76),
	}
	centers := lineCenters()[:2]
	l := prepare(t, units, centers, cfg)
	obs := &recordingObserver{}
	out, err := NewController(l, NewSelector(cfg), cfg, WithObserver(obs)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stalled, out.State)
	assert.Equal(t, 0, out.Moves)
	assert.Equal(t, []string{"A"}, out.StillOverloaded)
	assert.Equal(t, []string{"A"}, obs.exhausted)
}

func TestController_RuralCentersUntouched(t *testing.T) {
	cfg := DefaultConfig()
	units := append(westOfA(),
		unit("b1", 10, 39.70, -104.80),
		unit("b2", 10, 39.70, -104.80),
	)
	l := prepare(t, units, lineCenters(), cfg)
	b, _ := l.Center("B")
	require.True(t, b.Rural)

	out, err := NewController(l, NewSelector(cfg), cfg).Run(context.Background())
	require.NoError(t, err)

	// C fills first from the underloaded pass, then once more under the
	// relaxed ceiling; after that neither A nor C can shed anything.
	assert.Equal(t, Stalled, out.State)
	assert.Equal(t, 2, out.Moves)
	assert.Equal(t, 3, out.Iterations)
	assert.Equal(t, []string{"A", "C"}, out.StillOverloaded)

	b, _ = l.Center("B")
	assert.Equal(t, []string{"b1", "b2"}, b.MemberIDs)
	assert.Equal(t, 20, b.AssignedWeight)
	c, _ := l.Center("C")
	assert.Equal(t, []string{"u200", "u500"}, c.MemberIDs)
	assert.LessOrEqual(t, float64(c.AssignedWeight), l.RelaxedCeiling())
	require.NoError(t, l.CheckInvariants())
}

func TestController_SkipsPinnedAndZeroWeight(t *testing.T) {
	cfg := DefaultConfig()
	units := []UnitRecord{
		{ID: "p1", Weight: 1000, Location: geo.Point(39.70, -104.91), Pinned: true},
		unit("z1", 0, 39.70, -104.92),
		unit("z2", 0, 39.70, -104.93),
		unit("z3", 0, 39.70, -104.94),
		unit("b1", 1, 39.70, -104.79),
		unit("b2", 1, 39.70, -104.78),
		unit("b3", 1, 39.70, -104.77),
		unit("b4", 1, 39.70, -104.76),
	}
	l := prepare(t, units, lineCenters()[:2], cfg)
	out, err := NewController(l, NewSelector(cfg), cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stalled, out.State)
	assert.Equal(t, 0, out.Moves)
	a, _ := l.Center("A")
	require.False(t, a.Rural)
	for _, id := range []string{"p1", "z1", "z2", "z3"} {
		u, _ := l.Unit(id)
		assert.Equal(t, "A", u.AssignedCenterID, id)
		assert.False(t, u.Reassigned, id)
	}
}

func TestController_CanceledBetweenIterations(t *testing.T) {
	cfg := DefaultConfig()
	l := prepare(t, twoClusterUnits(), fourCenters(), cfg)
	ctx, cancel := context.WithCancel(context.Background())

	obs := &cancelAfterFirst{cancel: cancel}
	out, err := NewController(l, NewSelector(cfg), cfg, WithObserver(obs)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Running, out.State)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, 2, out.Moves)
	assert.Equal(t, []string{"D"}, out.StillOverloaded)
	require.NoError(t, l.CheckInvariants())
}

type cancelAfterFirst struct {
	NopObserver
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) OnIteration(IterationEvent) { c.cancel() }

func TestState_Text(t *testing.T) {
	for _, s := range []State{Running, Converged, Stalled, IterationLimitReached} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
	assert.False(t, Running.Terminal())
	assert.True(t, Stalled.Terminal())
}
