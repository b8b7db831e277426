package balance

// MoveEvent describes one applied move.
type MoveEvent struct {
	Iteration    int
	UnitID       string
	FromCenterID string
	ToCenterID   string
	Weight       int
	Distance     float64 // miles from the unit to the destination
	Rank         int     // 1-based rank of the destination for this unit
}

// IterationEvent summarizes one outer cascade iteration.
type IterationEvent struct {
	Iteration    int
	CenterID     string
	CenterWeight int // weight after draining
	Moves        int
	Overloaded   int // overloaded centers remaining
}

// Observer receives controller progress. Callbacks run synchronously on the
// controller goroutine and must not retain the ledger.
type Observer interface {
	OnMove(MoveEvent)
	OnCenterExhausted(centerID string, weight int)
	OnIteration(IterationEvent)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnMove(MoveEvent)              {}
func (NopObserver) OnCenterExhausted(string, int) {}
func (NopObserver) OnIteration(IterationEvent)    {}

type multiObserver []Observer

// MultiObserver fans events out to every observer in order.
func MultiObserver(obs ...Observer) Observer { return multiObserver(obs) }

func (m multiObserver) OnMove(e MoveEvent) {
	for _, o := range m {
		o.OnMove(e)
	}
}

func (m multiObserver) OnCenterExhausted(id string, w int) {
	for _, o := range m {
		o.OnCenterExhausted(id, w)
	}
}

func (m multiObserver) OnIteration(e IterationEvent) {
	for _, o := range m {
		o.OnIteration(e)
	}
}
