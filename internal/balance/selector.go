package balance

import (
	"github.com/paulmach/orb"

	"vspcbal/internal/geo"
)

// Selector picks a destination center for a unit being drained.
type Selector struct {
	cfg    Config
	origin orb.Point
}

// NewSelector returns a Selector for cfg.
func NewSelector(cfg Config) *Selector {
	return &Selector{
		cfg:    cfg,
		origin: geo.Point(cfg.QuadrantGuard.CenterLat, cfg.QuadrantGuard.CenterLng),
	}
}

// SelectDestination returns the id of the center the unit should move to,
// or false when no candidate qualifies.
//
// Candidates are ranks 2 through MaxRankDepth of the unit's ranking, minus
// its current center and rural centers. The closest underloaded candidate
// wins. Failing that, the closest candidate that stays at or below the
// relaxed ceiling after taking the unit's weight is used.
func (s *Selector) SelectDestination(l *Ledger, unitID string) (string, bool) {
	ui, ok := l.unitIndex[unitID]
	if !ok {
		return "", false
	}
	ci, ok := s.selectIndex(l, ui)
	if !ok {
		return "", false
	}
	return l.centers[ci].rec.ID, true
}

func (s *Selector) selectIndex(l *Ledger, ui int) (int, bool) {
	u := &l.units[ui]
	if u.rec.Pinned || l.centers[u.assigned].rural {
		return -1, false
	}
	ranking := l.rankings[ui]
	depth := min(s.cfg.MaxRankDepth, len(ranking))
	relaxed := -1
	for pos := 1; pos < depth; pos++ {
		r := ranking[pos]
		if r.Center == u.assigned {
			continue
		}
		c := &l.centers[r.Center]
		if c.rural {
			continue
		}
		if s.cfg.MaxMoveDistanceMiles > 0 && r.Distance > s.cfg.MaxMoveDistanceMiles {
			continue
		}
		if s.cfg.QuadrantGuard.Enabled && !s.quadrantAllowed(l, ui, r.Center) {
			continue
		}
		if l.classify(r.Center) == Underloaded {
			return r.Center, true
		}
		if relaxed < 0 && float64(c.weight+u.rec.Weight) <= l.ceiling {
			relaxed = r.Center
		}
	}
	return relaxed, relaxed >= 0
}

// quadrantAllowed rejects a move into the quadrant diagonally opposite the
// current center unless the unit itself sits in the destination quadrant.
func (s *Selector) quadrantAllowed(l *Ledger, ui, to int) bool {
	u := &l.units[ui]
	from := geo.QuadrantOf(s.origin, l.centers[u.assigned].rec.Location)
	dest := geo.QuadrantOf(s.origin, l.centers[to].rec.Location)
	if !geo.Opposite(from, dest) {
		return true
	}
	return geo.QuadrantOf(s.origin, u.rec.Location) == dest
}
