package strategy

import "orderly-mm-bot/internal/config"

// ShouldTakeProfit reports whether the position should be closed now:
// either the unrealized PnL exceeds the dollar target, or the price has
// moved favorably by more than the configured percentage. Always false
// for an epsilon-flat position or an unknown entry price.
func ShouldTakeProfit(cfg config.RiskConfig, qty, mark, avgEntry float64) bool {
	if abs(qty) < QtyEpsilon || avgEntry == 0 {
		return false
	}
	if qty*(mark-avgEntry) > cfg.TakeProfitUSD {
		return true
	}
	movePct := (mark - avgEntry) / avgEntry * 100
	if qty > 0 {
		return movePct > cfg.FavorableMovePct
	}
	return movePct < -cfg.FavorableMovePct
}

// StopPosition is the inventory threshold in base units. It is computed
// from the fixed reference price, never the live mark, so a favorable
// price move cannot trip the stop on its own.
func StopPosition(cfg config.RiskConfig) float64 {
	maxPosition := cfg.CollateralUSD * cfg.MaxLeverage / cfg.ReferencePrice
	return maxPosition * cfg.InventoryStopFraction
}

// ShouldStopQuoting reports whether the position exceeds the inventory
// stop. Only the position quantity and fixed config matter.
func ShouldStopQuoting(cfg config.RiskConfig, qty float64) bool {
	return abs(qty) > StopPosition(cfg)
}
