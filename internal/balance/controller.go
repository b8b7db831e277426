package balance

import (
	"context"
	"log/slog"
	"strings"
)

// Outcome is the terminal report of a cascade run.
type Outcome struct {
	State           State
	Iterations      int
	Moves           int
	StillOverloaded []string // sorted center ids
}

// Controller drives the iterative cascade over a Ledger.
type Controller struct {
	ledger   *Ledger
	selector *Selector
	maxIter  int
	logger   *slog.Logger
	observer Observer
}

// NewController returns a controller that mutates ledger.
func NewController(ledger *Ledger, selector *Selector, cfg Config, opts ...Option) *Controller {
	o := buildOptions(opts)
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Controller{
		ledger:   ledger,
		selector: selector,
		maxIter:  maxIter,
		logger:   o.logger,
		observer: o.observer(),
	}
}

// Run iterates until no center is overloaded, every overloaded center is
// exhausted, or the iteration cap is hit. Cancellation is checked between
// iterations; on cancellation the partial outcome is returned with ctx.Err().
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{State: Running}
	exhausted := make(map[int]bool)
	for {
		if err := ctx.Err(); err != nil {
			out.StillOverloaded = c.ledger.Overloaded()
			return out, err
		}
		overloaded := c.ledger.overloaded()
		if len(overloaded) == 0 {
			out.State = Converged
			break
		}
		v := c.pick(overloaded, exhausted)
		if v < 0 {
			out.State = Stalled
			break
		}
		if out.Iterations >= c.maxIter {
			out.State = IterationLimitReached
			break
		}
		out.Iterations++

		moved, err := c.drain(out.Iterations, v)
		out.Moves += moved
		if err != nil {
			return out, err
		}
		center := &c.ledger.centers[v]
		if moved == 0 {
			exhausted[v] = true
			c.logger.Debug("center_exhausted", "center", center.rec.ID, "weight", center.weight)
			c.observer.OnCenterExhausted(center.rec.ID, center.weight)
		} else {
			clear(exhausted)
		}
		remaining := len(c.ledger.overloaded())
		c.logger.Debug("cascade_iteration",
			"iteration", out.Iterations,
			"center", center.rec.ID,
			"weight", center.weight,
			"moves", moved,
			"overloaded", remaining,
		)
		c.observer.OnIteration(IterationEvent{
			Iteration:    out.Iterations,
			CenterID:     center.rec.ID,
			CenterWeight: center.weight,
			Moves:        moved,
			Overloaded:   remaining,
		})
	}
	out.StillOverloaded = c.ledger.Overloaded()
	c.logger.Info("cascade_done",
		"state", out.State.String(),
		"iterations", out.Iterations,
		"moves", out.Moves,
		"still_overloaded", len(out.StillOverloaded),
	)
	return out, nil
}

// pick returns the heaviest non-exhausted overloaded center, lowest id on
// ties, or -1 when all are exhausted.
func (c *Controller) pick(overloaded []int, exhausted map[int]bool) int {
	best := -1
	for _, ci := range overloaded {
		if exhausted[ci] {
			continue
		}
		if best < 0 {
			best = ci
			continue
		}
		a, b := &c.ledger.centers[ci], &c.ledger.centers[best]
		if a.weight > b.weight || (a.weight == b.weight && strings.Compare(a.rec.ID, b.rec.ID) < 0) {
			best = ci
		}
	}
	return best
}

// drain moves units out of center v, heaviest first, until v is no longer
// overloaded or its members are exhausted.
func (c *Controller) drain(iteration, v int) (int, error) {
	l := c.ledger
	moved := 0
	for _, ui := range l.drainOrder(v) {
		if l.classify(v) != Overloaded {
			break
		}
		u := &l.units[ui]
		if u.rec.Weight == 0 || u.rec.Pinned {
			continue
		}
		to, ok := c.selector.selectIndex(l, ui)
		if !ok {
			continue
		}
		if err := l.move(ui, v, to); err != nil {
			return moved, err
		}
		moved++
		r := l.rankings[ui][u.pos]
		c.observer.OnMove(MoveEvent{
			Iteration:    iteration,
			UnitID:       u.rec.ID,
			FromCenterID: l.centers[v].rec.ID,
			ToCenterID:   l.centers[to].rec.ID,
			Weight:       u.rec.Weight,
			Distance:     r.Distance,
			Rank:         u.pos + 1,
		})
	}
	return moved, nil
}
