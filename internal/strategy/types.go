// Package strategy holds the pure quoting and risk decision functions.
// Nothing here touches the network; every function is deterministic in
// its inputs so a single tick can be unit tested in isolation.
package strategy

// QtyEpsilon is the position size below which the account is treated as
// flat.
const QtyEpsilon = 1e-4

// QuoteState is the engine's belief about its own resting quotes. Prices
// are nil until the first confirmed placement; only the control loop
// mutates them, and only after a confirmed placement.
type QuoteState struct {
	BidPrice *float64
	AskPrice *float64
}

func (q QuoteState) HasBoth() bool {
	return q.BidPrice != nil && q.AskPrice != nil
}

// Quote is one side of a planned two-sided quote.
type Quote struct {
	Price     float64
	Quantity  float64
	SpreadBps float64
}

// QuotePlan is the desired bid/ask pair for a tick. LossProtected marks
// plans where one side was repriced to close the position at the
// guaranteed target.
type QuotePlan struct {
	Bid           Quote
	Ask           Quote
	LossProtected bool
}

// UnrealizedPnL values a position at the mark price. Zero when the
// position is epsilon-flat or the entry price is unknown.
func UnrealizedPnL(qty, mark, avgEntry float64) float64 {
	if abs(qty) < QtyEpsilon || avgEntry == 0 {
		return 0
	}
	return qty * (mark - avgEntry)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
