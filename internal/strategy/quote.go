package strategy

import (
	"fmt"

	"orderly-mm-bot/internal/config"
	"orderly-mm-bot/internal/orderly"
	"orderly-mm-bot/internal/ticks"
)

// closeThroughPct prices a position-closing order 0.1% through the mark
// so it fills promptly without resting.
const closeThroughPct = 0.001

// Engine derives quote plans from the mark price and risk config. Tick
// sizes are validated once at construction; all prices and quantities it
// emits are tick multiples.
type Engine struct {
	trading config.TradingConfig
	risk    config.RiskConfig
	info    orderly.MarketInfo
}

func NewEngine(trading config.TradingConfig, risk config.RiskConfig, info orderly.MarketInfo) (*Engine, error) {
	if info.PriceTick <= 0 {
		return nil, fmt.Errorf("%w: price tick %v", ticks.ErrInvalidTick, info.PriceTick)
	}
	if info.QtyTick <= 0 {
		return nil, fmt.Errorf("%w: qty tick %v", ticks.ErrInvalidTick, info.QtyTick)
	}
	return &Engine{trading: trading, risk: risk, info: info}, nil
}

// QtyTick exposes the quantity step for requote fill detection.
func (e *Engine) QtyTick() float64 {
	return e.info.QtyTick
}

// BaseQuotes computes the symmetric two-sided quote around mark: prices
// offset by the configured spread, equal size on both sides targeting
// the configured notional at the quote midpoint.
func (e *Engine) BaseQuotes(mark float64) QuotePlan {
	spread := e.trading.SpreadBps
	bidPrice := ticks.MustRound(mark*(1-spread/10000), e.info.PriceTick)
	askPrice := ticks.MustRound(mark*(1+spread/10000), e.info.PriceTick)
	mid := (bidPrice + askPrice) / 2
	quantity := ticks.MustRound(e.trading.OrderSizeUSD/mid, e.info.QtyTick)
	return QuotePlan{
		Bid: Quote{Price: bidPrice, Quantity: quantity, SpreadBps: spread},
		Ask: Quote{Price: askPrice, Quantity: quantity, SpreadBps: spread},
	}
}

// ApplyLossProtection reprices the closing side of a losing position so
// that closing the entire position at the adjusted price yields exactly
// the configured profit target, and doubles the opposite side's spread
// to discourage growing the position. No-op for flat or profitable
// positions.
func (e *Engine) ApplyLossProtection(plan QuotePlan, qty, mark, avgEntry float64) QuotePlan {
	pnl := UnrealizedPnL(qty, mark, avgEntry)
	if pnl >= 0 || abs(qty) < QtyEpsilon {
		return plan
	}
	priceOffset := e.risk.LossProtectionTargetUSD / abs(qty)
	switch {
	case qty < 0 && plan.Bid.Price > avgEntry:
		// Short under water: the bid would close at a loss. Reprice it
		// below entry to close the whole position at the target, widen
		// the ask.
		plan.Bid.Price = ticks.MustRound(avgEntry-priceOffset, e.info.PriceTick)
		plan.Bid.Quantity = ticks.MustRound(abs(qty), e.info.QtyTick)
		plan.Ask.SpreadBps *= 2
		plan.Ask.Price = ticks.MustRound(mark*(1+plan.Ask.SpreadBps/10000), e.info.PriceTick)
		plan.LossProtected = true
	case qty > 0 && plan.Ask.Price < avgEntry:
		plan.Ask.Price = ticks.MustRound(avgEntry+priceOffset, e.info.PriceTick)
		plan.Ask.Quantity = ticks.MustRound(abs(qty), e.info.QtyTick)
		plan.Bid.SpreadBps *= 2
		plan.Bid.Price = ticks.MustRound(mark*(1-plan.Bid.SpreadBps/10000), e.info.PriceTick)
		plan.LossProtected = true
	}
	return plan
}

// PlanQuotes is the full per-tick quote computation: base quotes plus
// loss protection.
func (e *Engine) PlanQuotes(mark, qty, avgEntry float64) QuotePlan {
	return e.ApplyLossProtection(e.BaseQuotes(mark), qty, mark, avgEntry)
}

// CloseOrder derives the order that closes the current position: the
// opposite side, full size, priced slightly through the mark.
func (e *Engine) CloseOrder(qty, mark float64) (side orderly.Side, price, quantity float64) {
	if qty > 0 {
		side = orderly.SideSell
		price = ticks.MustRound(mark*(1-closeThroughPct), e.info.PriceTick)
	} else {
		side = orderly.SideBuy
		price = ticks.MustRound(mark*(1+closeThroughPct), e.info.PriceTick)
	}
	quantity = ticks.MustRound(abs(qty), e.info.QtyTick)
	return side, price, quantity
}

// NeedsRequote decides whether the resting quotes are still acceptable.
// Requote on the first tick, after a fill (position moved by more than
// two quantity ticks), or when the mark drifts beyond 60% of the quoted
// spread width outside either side.
func NeedsRequote(state QuoteState, mark, qty, lastQty, qtyTick float64) bool {
	if !state.HasBoth() {
		return true
	}
	if abs(qty-lastQty) > 2*qtyTick {
		return true
	}
	spreadWidth := *state.AskPrice - *state.BidPrice
	threshold := spreadWidth * 0.6
	if mark > *state.AskPrice+threshold {
		return true
	}
	if mark < *state.BidPrice-threshold {
		return true
	}
	return false
}
