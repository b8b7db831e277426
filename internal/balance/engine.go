package balance

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/zeebo/xxh3"
	"gonum.org/v1/gonum/stat"
)

// Band is the balanced weight range [Low, High].
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// UnitResult is the final assignment of one unit.
type UnitResult struct {
	ID                string  `json:"id"`
	Weight            int     `json:"weight"`
	Pinned            bool    `json:"pinned,omitempty"`
	NearestCenterID   string  `json:"nearestCenterId"`
	NearestDistance   float64 `json:"nearestDistanceMiles"`
	SecondaryCenterID string  `json:"secondaryCenterId,omitempty"`
	AssignedCenterID  string  `json:"assignedCenterId"`
	AssignedDistance  float64 `json:"assignedDistanceMiles"`
	AssignedRank      int     `json:"assignedRank"`
	DistanceDelta     float64 `json:"distanceDeltaMiles"`
	Reassigned        bool    `json:"reassigned"`
}

// CenterResult is the final aggregate of one center.
type CenterResult struct {
	ID                string  `json:"id"`
	Name              string  `json:"name,omitempty"`
	AssignedWeight    int     `json:"assignedWeight"`
	AssignedUnitCount int     `json:"assignedUnitCount"`
	BaselineUnitCount int     `json:"baselineUnitCount"`
	Rural             bool    `json:"rural"`
	Load              Load    `json:"load"`
	DeviationPct      float64 `json:"deviationPct"`
}

// Result is the complete output of a run. Units and Centers are sorted by id.
type Result struct {
	State           State          `json:"state"`
	Iterations      int            `json:"iterations"`
	Moves           int            `json:"moves"`
	TotalWeight     int            `json:"totalWeight"`
	Target          float64        `json:"target"`
	Band            Band           `json:"band"`
	RelaxedCeiling  float64        `json:"relaxedCeiling"`
	StillOverloaded []string       `json:"stillOverloaded"`
	LoadMean        float64        `json:"loadMean"`
	LoadStdDev      float64        `json:"loadStdDev"`
	Digest          string         `json:"digest"`
	Units           []UnitResult   `json:"units"`
	Centers         []CenterResult `json:"centers"`
}

// Prepare validates the inputs, builds proximity rankings and seeds a Ledger.
func Prepare(ctx context.Context, units []UnitRecord, centers []CenterRecord, cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateRecords(units, centers); err != nil {
		return nil, err
	}
	rankings, err := BuildRankings(ctx, units, centers, cfg.RankingWorkers)
	if err != nil {
		return nil, err
	}
	return NewLedger(units, centers, rankings, cfg)
}

// Run rebalances units across centers. On cancellation it returns the
// partial result together with the context error.
func Run(ctx context.Context, units []UnitRecord, centers []CenterRecord, cfg Config, opts ...Option) (*Result, error) {
	ledger, err := Prepare(ctx, units, centers, cfg)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckInvariants(); err != nil {
		return nil, err
	}
	ctrl := NewController(ledger, NewSelector(cfg), cfg, opts...)
	out, runErr := ctrl.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		return nil, runErr
	}
	if err := ledger.CheckInvariants(); err != nil {
		return nil, err
	}
	return NewResult(ledger, out), runErr
}

// NewResult assembles the output records from a ledger and its outcome.
func NewResult(l *Ledger, out Outcome) *Result {
	low, high := l.Band()
	res := &Result{
		State:           out.State,
		Iterations:      out.Iterations,
		Moves:           out.Moves,
		TotalWeight:     l.total,
		Target:          l.target,
		Band:            Band{Low: low, High: high},
		RelaxedCeiling:  l.ceiling,
		StillOverloaded: out.StillOverloaded,
	}
	if res.StillOverloaded == nil {
		res.StillOverloaded = []string{}
	}

	for _, u := range l.Units() {
		ui := l.unitIndex[u.ID]
		ur := UnitResult{
			ID:               u.ID,
			Weight:           u.Weight,
			Pinned:           u.Pinned,
			NearestCenterID:  u.NearestCenterID,
			NearestDistance:  u.NearestDistance,
			AssignedCenterID: u.AssignedCenterID,
			AssignedDistance: u.AssignedDistance,
			AssignedRank:     u.AssignedRank,
			DistanceDelta:    u.AssignedDistance - u.NearestDistance,
			Reassigned:       u.Reassigned,
		}
		if r := l.rankings[ui]; len(r) > 1 {
			ur.SecondaryCenterID = l.centers[r[1].Center].rec.ID
		}
		res.Units = append(res.Units, ur)
	}

	loads := make([]float64, 0, len(l.centers))
	for _, c := range l.Centers() {
		ci := l.centerIndex[c.ID]
		cr := CenterResult{
			ID:                c.ID,
			Name:              c.Name,
			AssignedWeight:    c.AssignedWeight,
			AssignedUnitCount: len(c.MemberIDs),
			BaselineUnitCount: c.BaselineCount,
			Rural:             c.Rural,
			Load:              l.classify(ci),
		}
		if l.target > 0 {
			cr.DeviationPct = (float64(c.AssignedWeight) - l.target) / l.target * 100
		}
		res.Centers = append(res.Centers, cr)
		loads = append(loads, float64(c.AssignedWeight))
	}
	res.LoadMean, res.LoadStdDev = loadStats(loads)
	res.Digest = Digest(res)
	return res
}

func loadStats(loads []float64) (mean, std float64) {
	if len(loads) == 0 {
		return 0, 0
	}
	if len(loads) == 1 {
		return loads[0], 0
	}
	mean, std = stat.MeanStdDev(loads, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// Digest hashes the assignment and load records of a result. Two runs over
// the same inputs and configuration produce the same digest.
func Digest(r *Result) string {
	h := xxh3.New()
	var buf []byte
	for _, u := range r.Units {
		buf = buf[:0]
		buf = append(buf, 'u', '|')
		buf = append(buf, u.ID...)
		buf = append(buf, '|')
		buf = append(buf, u.AssignedCenterID...)
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, int64(u.Weight), 10)
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, u.AssignedDistance, 'f', 6, 64)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	for _, c := range r.Centers {
		buf = buf[:0]
		buf = append(buf, 'c', '|')
		buf = append(buf, c.ID...)
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, int64(c.AssignedWeight), 10)
		buf = append(buf, '|')
		buf = append(buf, c.Load.String()...)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	_, _ = h.WriteString(r.State.String())
	return fmt.Sprintf("%016x", h.Sum64())
}
