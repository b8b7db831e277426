package balance

import (
	"cmp"
	"slices"
	"strings"
)

type unitState struct {
	rec      UnitRecord
	nearest  int // center index
	assigned int // center index
	pos      int // 0-based position of assigned in the unit's ranking
}

type centerState struct {
	rec      CenterRecord
	weight   int
	members  map[int]struct{}
	rural    bool
	baseline int
}

// Ledger is the authoritative assignment table. Move is its only mutator.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	units    []unitState
	centers  []centerState
	rankings []Ranking

	unitIndex   map[string]int
	centerIndex map[string]int

	total     int
	target    float64
	tolerance float64
	ceiling   float64
	moves     int
}

// NewLedger seeds every unit at its nearest center (or at its pinned center),
// flags rural centers and computes the load target. rankings must be indexed
// like units, as returned by BuildRankings.
func NewLedger(units []UnitRecord, centers []CenterRecord, rankings []Ranking, cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateRecords(units, centers); err != nil {
		return nil, err
	}
	if len(rankings) != len(units) {
		return nil, invariantf("have %d rankings for %d units", len(rankings), len(units))
	}

	l := &Ledger{
		units:       make([]unitState, len(units)),
		centers:     make([]centerState, len(centers)),
		rankings:    rankings,
		unitIndex:   make(map[string]int, len(units)),
		centerIndex: make(map[string]int, len(centers)),
		tolerance:   cfg.Tolerance,
	}
	for i, c := range centers {
		l.centers[i] = centerState{rec: c, members: make(map[int]struct{})}
		l.centerIndex[c.ID] = i
	}
	for i, u := range units {
		if len(rankings[i]) != len(centers) {
			return nil, invariantf("ranking for unit %s has %d entries, want %d", u.ID, len(rankings[i]), len(centers))
		}
		l.unitIndex[u.ID] = i
		nearest := rankings[i][0].Center
		l.units[i] = unitState{rec: u, nearest: nearest, assigned: nearest}
		l.centers[nearest].baseline++
		l.total += u.Weight
	}
	for i := range l.centers {
		c := &l.centers[i]
		c.rural = c.baseline > 0 && c.baseline <= cfg.RuralThreshold
	}

	for i := range l.units {
		u := &l.units[i]
		if u.rec.Pinned && u.rec.PinnedCenterID != "" {
			pinned := l.centerIndex[u.rec.PinnedCenterID]
			if pinned != u.nearest && l.centers[u.nearest].rural {
				return nil, &DataError{Kind: "unit", ID: u.rec.ID, Reason: "nearest center " + l.centers[u.nearest].rec.ID + " is rural; unit cannot be pinned elsewhere"}
			}
			u.assigned = pinned
			u.pos = rankings[i].position(pinned)
		}
		c := &l.centers[u.assigned]
		c.members[i] = struct{}{}
		c.weight += u.rec.Weight
	}

	l.target = float64(l.total) / float64(len(centers))
	l.ceiling = l.target * cfg.RelaxedCeilingFactor
	return l, nil
}

// Target is total weight divided by center count.
func (l *Ledger) Target() float64 { return l.target }

// RelaxedCeiling is the fallback acceptance ceiling.
func (l *Ledger) RelaxedCeiling() float64 { return l.ceiling }

// TotalWeight is the constant sum of all unit weights.
func (l *Ledger) TotalWeight() int { return l.total }

// Band returns the [low, high] weight band that counts as balanced.
func (l *Ledger) Band() (low, high float64) {
	return l.target * (1 - l.tolerance), l.target * (1 + l.tolerance)
}

// Moves is the number of moves applied so far.
func (l *Ledger) Moves() int { return l.moves }

// Classify reports the load of the named center.
func (l *Ledger) Classify(centerID string) (Load, bool) {
	ci, ok := l.centerIndex[centerID]
	if !ok {
		return Balanced, false
	}
	return l.classify(ci), true
}

func (l *Ledger) classify(ci int) Load {
	w := float64(l.centers[ci].weight)
	low, high := l.Band()
	switch {
	case w > high:
		return Overloaded
	case w < low:
		return Underloaded
	default:
		return Balanced
	}
}

// Overloaded returns the ids of all overloaded centers, sorted.
func (l *Ledger) Overloaded() []string {
	idx := l.overloaded()
	ids := make([]string, len(idx))
	for i, ci := range idx {
		ids[i] = l.centers[ci].rec.ID
	}
	slices.Sort(ids)
	return ids
}

func (l *Ledger) overloaded() []int {
	var out []int
	for ci := range l.centers {
		if l.classify(ci) == Overloaded {
			out = append(out, ci)
		}
	}
	return out
}

// Move reassigns a unit from one center to another. It fails with an
// *InvariantError, leaving the ledger unchanged, when the move would break a
// ledger invariant.
func (l *Ledger) Move(unitID, fromID, toID string) error {
	ui, ok := l.unitIndex[unitID]
	if !ok {
		return invariantf("unknown unit %s", unitID)
	}
	from, ok := l.centerIndex[fromID]
	if !ok {
		return invariantf("unknown center %s", fromID)
	}
	to, ok := l.centerIndex[toID]
	if !ok {
		return invariantf("unknown center %s", toID)
	}
	return l.move(ui, from, to)
}

func (l *Ledger) move(ui, from, to int) error {
	u := &l.units[ui]
	id := u.rec.ID
	switch {
	case u.assigned != from:
		return invariantf("unit %s is assigned to %s, not %s", id, l.centers[u.assigned].rec.ID, l.centers[from].rec.ID)
	case from == to:
		return invariantf("unit %s moved onto its own center", id)
	case u.rec.Pinned:
		return invariantf("unit %s is pinned", id)
	case l.centers[from].rural:
		return invariantf("unit %s cannot leave rural center %s", id, l.centers[from].rec.ID)
	case l.centers[to].rural:
		return invariantf("unit %s cannot enter rural center %s", id, l.centers[to].rec.ID)
	}
	pos := l.rankings[ui].position(to)
	if pos <= 0 {
		return invariantf("unit %s cannot move to its nearest center %s", id, l.centers[to].rec.ID)
	}

	src, dst := &l.centers[from], &l.centers[to]
	if _, ok := src.members[ui]; !ok {
		return invariantf("center %s does not list unit %s", src.rec.ID, id)
	}
	if _, ok := dst.members[ui]; ok {
		return invariantf("center %s already lists unit %s", dst.rec.ID, id)
	}
	before := src.weight + dst.weight
	srcWeight, dstWeight := src.weight-u.rec.Weight, dst.weight+u.rec.Weight
	if srcWeight < 0 {
		return invariantf("move of %s leaves %s with weight %d", id, src.rec.ID, srcWeight)
	}
	if after := srcWeight + dstWeight; after != before {
		return invariantf("move of %s changes pair weight from %d to %d", id, before, after)
	}

	delete(src.members, ui)
	dst.members[ui] = struct{}{}
	src.weight, dst.weight = srcWeight, dstWeight
	u.assigned, u.pos = to, pos
	l.moves++
	return nil
}

// CheckInvariants verifies the whole ledger: each unit in exactly one
// center, weights conserved, assigned distances no shorter than nearest, and
// rural centers holding their baseline members.
func (l *Ledger) CheckInvariants() error {
	seen := make([]int, len(l.units))
	sum := 0
	for ci := range l.centers {
		c := &l.centers[ci]
		w := 0
		for ui := range c.members {
			seen[ui]++
			if l.units[ui].assigned != ci {
				return invariantf("center %s lists unit %s assigned elsewhere", c.rec.ID, l.units[ui].rec.ID)
			}
			w += l.units[ui].rec.Weight
		}
		if w != c.weight {
			return invariantf("center %s weight %d, members sum to %d", c.rec.ID, c.weight, w)
		}
		sum += w
	}
	if sum != l.total {
		return invariantf("total weight %d, centers sum to %d", l.total, sum)
	}
	for ui, n := range seen {
		u := &l.units[ui]
		if n != 1 {
			return invariantf("unit %s appears in %d centers", u.rec.ID, n)
		}
		r := l.rankings[ui]
		if r[u.pos].Center != u.assigned {
			return invariantf("unit %s rank position out of sync", u.rec.ID)
		}
		if r[u.pos].Distance < r[0].Distance {
			return invariantf("unit %s assigned closer than its nearest center", u.rec.ID)
		}
		if l.centers[u.nearest].rural && u.assigned != u.nearest {
			return invariantf("unit %s left rural center %s", u.rec.ID, l.centers[u.nearest].rec.ID)
		}
	}
	return nil
}

// Unit returns a snapshot of the named unit.
func (l *Ledger) Unit(id string) (Unit, bool) {
	ui, ok := l.unitIndex[id]
	if !ok {
		return Unit{}, false
	}
	return l.unitSnapshot(ui), true
}

func (l *Ledger) unitSnapshot(ui int) Unit {
	u := &l.units[ui]
	r := l.rankings[ui]
	return Unit{
		ID:               u.rec.ID,
		Weight:           u.rec.Weight,
		Pinned:           u.rec.Pinned,
		NearestCenterID:  l.centers[u.nearest].rec.ID,
		NearestDistance:  r[0].Distance,
		AssignedCenterID: l.centers[u.assigned].rec.ID,
		AssignedDistance: r[u.pos].Distance,
		AssignedRank:     u.pos + 1,
		Reassigned:       u.assigned != u.nearest,
	}
}

// Units returns snapshots of every unit sorted by id.
func (l *Ledger) Units() []Unit {
	out := make([]Unit, len(l.units))
	for i := range l.units {
		out[i] = l.unitSnapshot(i)
	}
	slices.SortFunc(out, func(a, b Unit) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Center returns a snapshot of the named center.
func (l *Ledger) Center(id string) (Center, bool) {
	ci, ok := l.centerIndex[id]
	if !ok {
		return Center{}, false
	}
	return l.centerSnapshot(ci), true
}

func (l *Ledger) centerSnapshot(ci int) Center {
	c := &l.centers[ci]
	ids := make([]string, 0, len(c.members))
	for ui := range c.members {
		ids = append(ids, l.units[ui].rec.ID)
	}
	slices.Sort(ids)
	return Center{
		ID:             c.rec.ID,
		Name:           c.rec.Name,
		AssignedWeight: c.weight,
		MemberIDs:      ids,
		Rural:          c.rural,
		BaselineCount:  c.baseline,
	}
}

// Centers returns snapshots of every center sorted by id.
func (l *Ledger) Centers() []Center {
	out := make([]Center, len(l.centers))
	for i := range l.centers {
		out[i] = l.centerSnapshot(i)
	}
	slices.SortFunc(out, func(a, b Center) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// drainOrder lists the members of a center by weight descending, then id ascending.
func (l *Ledger) drainOrder(ci int) []int {
	out := make([]int, 0, len(l.centers[ci].members))
	for ui := range l.centers[ci].members {
		out = append(out, ui)
	}
	slices.SortFunc(out, func(a, b int) int {
		ua, ub := &l.units[a], &l.units[b]
		if c := cmp.Compare(ub.rec.Weight, ua.rec.Weight); c != 0 {
			return c
		}
		return strings.Compare(ua.rec.ID, ub.rec.ID)
	})
	return out
}
