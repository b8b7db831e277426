package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vspcbal/internal/geo"
)

func unit(id string, weight int, lat, lng float64) UnitRecord {
	return UnitRecord{ID: id, Weight: weight, Location: geo.Point(lat, lng)}
}

func center(id string, lat, lng float64) CenterRecord {
	return CenterRecord{ID: id, Name: "Center " + id, Location: geo.Point(lat, lng)}
}

// lineCenters places A, B and C ten hundredths of a degree apart on one parallel.
func lineCenters() []CenterRecord {
	return []CenterRecord{
		center("A", 39.70, -104.90),
		center("B", 39.70, -104.80),
		center("C", 39.70, -104.70),
	}
}

// westOfA returns five units just west of A with weights 500 down to 100.
func westOfA() []UnitRecord {
	return []UnitRecord{
		unit("u500", 500, 39.70, -104.91),
		unit("u400", 400, 39.70, -104.92),
		unit("u300", 300, 39.70, -104.93),
		unit("u200", 200, 39.70, -104.94),
		unit("u100", 100, 39.70, -104.95),
	}
}

func prepare(t *testing.T, units []UnitRecord, centers []CenterRecord, cfg Config) *Ledger {
	t.Helper()
	l, err := Prepare(context.Background(), units, centers, cfg)
	require.NoError(t, err)
	require.NoError(t, l.CheckInvariants())
	return l
}

func weights(r *Result) map[string]int {
	out := make(map[string]int, len(r.Centers))
	for _, c := range r.Centers {
		out[c.ID] = c.AssignedWeight
	}
	return out
}

func assignments(r *Result) map[string]string {
	out := make(map[string]string, len(r.Units))
	for _, u := range r.Units {
		out[u.ID] = u.AssignedCenterID
	}
	return out
}

type recordingObserver struct {
	moves      []MoveEvent
	exhausted  []string
	iterations []IterationEvent
}

func (r *recordingObserver) OnMove(e MoveEvent) { r.moves = append(r.moves, e) }

func (r *recordingObserver) OnCenterExhausted(id string, _ int) {
	r.exhausted = append(r.exhausted, id)
}

func (r *recordingObserver) OnIteration(e IterationEvent) { r.iterations = append(r.iterations, e) }
