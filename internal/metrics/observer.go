package metrics

import "vspcbal/internal/balance"

// EngineObserver feeds cascade progress into the rebalance counters.
type EngineObserver struct{ balance.NopObserver }

func (EngineObserver) OnMove(balance.MoveEvent) { RebalanceMoves.Inc() }

func (EngineObserver) OnCenterExhausted(string, int) { CentersExhausted.Inc() }
