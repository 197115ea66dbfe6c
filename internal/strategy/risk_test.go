package strategy

import (
	"math"
	"testing"

	"orderly-mm-bot/internal/config"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		TakeProfitUSD:           0.08,
		FavorableMovePct:        0.5,
		LossProtectionTargetUSD: 0.05,
		CollateralUSD:           100,
		MaxLeverage:             8,
		InventoryStopFraction:   0.6,
		ReferencePrice:          2000,
	}
}

func TestShouldTakeProfitOnPnL(t *testing.T) {
	cfg := testRiskConfig()
	// long 0.05 @ 1990, mark 2000 => pnl 0.5 > 0.08
	if !ShouldTakeProfit(cfg, 0.05, 2000, 1990) {
		t.Fatalf("expected take profit on pnl")
	}
	// long 0.05 @ 1999, mark 2000 => pnl 0.05 < 0.08, move 0.05% < 0.5%
	if ShouldTakeProfit(cfg, 0.05, 2000, 1999) {
		t.Fatalf("expected no take profit for small pnl and move")
	}
}

func TestShouldTakeProfitOnFavorableMove(t *testing.T) {
	cfg := testRiskConfig()
	// long: +0.6% move, pnl 0.001*12 = 0.012 < 0.08
	if !ShouldTakeProfit(cfg, 0.001, 2012, 2000) {
		t.Fatalf("expected take profit on favorable long move")
	}
	// short: -0.6% move
	if !ShouldTakeProfit(cfg, -0.001, 1988, 2000) {
		t.Fatalf("expected take profit on favorable short move")
	}
	// short hurt by +0.6% move must not trigger
	if ShouldTakeProfit(cfg, -0.001, 2012, 2000) {
		t.Fatalf("adverse move must not take profit")
	}
}

func TestShouldTakeProfitGuards(t *testing.T) {
	cfg := testRiskConfig()
	if ShouldTakeProfit(cfg, 0, 2000, 1990) {
		t.Fatalf("flat position must not take profit")
	}
	if ShouldTakeProfit(cfg, 5e-5, 2000, 1990) {
		t.Fatalf("epsilon position must not take profit")
	}
	if ShouldTakeProfit(cfg, 1, 99999, 0) {
		t.Fatalf("unknown entry price must not take profit")
	}
}

func TestStopPositionThreshold(t *testing.T) {
	cfg := testRiskConfig()
	// 100 * 8 / 2000 * 0.6 = 0.24
	if got := StopPosition(cfg); math.Abs(got-0.24) > 1e-12 {
		t.Fatalf("expected stop position 0.24, got %v", got)
	}
	if !ShouldStopQuoting(cfg, 0.25) {
		t.Fatalf("expected stop at 0.25")
	}
	if !ShouldStopQuoting(cfg, -0.25) {
		t.Fatalf("expected stop for short inventory too")
	}
	if ShouldStopQuoting(cfg, 0.20) {
		t.Fatalf("expected no stop at 0.20")
	}
}

func TestStopIgnoresMarkPrice(t *testing.T) {
	// The decision depends only on qty and fixed config: recomputing it
	// under wildly different notional conditions changes nothing.
	cfg := testRiskConfig()
	for _, qty := range []float64{0.1, 0.239, 0.241, 0.5} {
		want := ShouldStopQuoting(cfg, qty)
		for i := 0; i < 3; i++ {
			if ShouldStopQuoting(cfg, qty) != want {
				t.Fatalf("stop decision must be stable for qty %v", qty)
			}
		}
	}
}

func TestUnrealizedPnL(t *testing.T) {
	if got := UnrealizedPnL(0.05, 2000, 1990); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected pnl 0.5, got %v", got)
	}
	if got := UnrealizedPnL(-0.1, 2010, 2000); math.Abs(got-(-1.0)) > 1e-12 {
		t.Fatalf("expected pnl -1.0, got %v", got)
	}
	if got := UnrealizedPnL(1e-6, 2000, 1990); got != 0 {
		t.Fatalf("epsilon position has zero pnl, got %v", got)
	}
	if got := UnrealizedPnL(1, 2000, 0); got != 0 {
		t.Fatalf("unknown entry has zero pnl, got %v", got)
	}
}
