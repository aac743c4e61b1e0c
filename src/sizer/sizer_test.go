package sizer

import (
	"testing"

	"github.com/shopspring/decimal"

	"allocengine/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseParams() Params {
	return Params{
		Signal: &model.Signal{
			ID:           "sig-1",
			Symbol:       "RELIANCE",
			Direction:    model.DirectionLong,
			EdgeEstimate: 0.05,
			Confidence:   0.8,
			HorizonDays:  10,
			Sector:       "ENERGY",
		},
		Mandate: &model.Mandate{
			AccountID:              1,
			MaxRiskPerTradePercent: 2.0,
			SLMultiplier:           2.0,
			TPMultiplier:           4.0,
		},
		TotalCapital:  d("100000"),
		AvailableCash: d("100000"),
		Price:         2450,
		ATR:           50,
	}
}

// Reference scenario: 100,000 capital, 2% risk per trade, entry 2450,
// ATR 50 x SL mult 2 puts the stop at 2350 (risk/share 100), so the 2,000
// risk budget buys exactly 20 shares.
func TestSizeRiskBudgetScenario(t *testing.T) {
	got := Size(baseParams(), DefaultConfig())

	if got.Quantity != 20 {
		t.Fatalf("quantity = %d, want 20", got.Quantity)
	}
	if got.StopLoss != 2350 {
		t.Fatalf("stop = %v, want 2350", got.StopLoss)
	}
	if got.TakeProfit != 2650 {
		t.Fatalf("target = %v, want 2650", got.TakeProfit)
	}
	if got.RiskAmount != 2000 {
		t.Fatalf("risk amount = %v, want 2000", got.RiskAmount)
	}
	if !got.Notional.Equal(d("49000")) {
		t.Fatalf("notional = %s, want 49000", got.Notional.String())
	}
	if got.RiskRewardRatio != 2 {
		t.Fatalf("rr = %v, want 2", got.RiskRewardRatio)
	}
}

func TestSizeShortDirection(t *testing.T) {
	p := baseParams()
	p.Signal.Direction = model.DirectionShort

	got := Size(p, DefaultConfig())
	if got.StopLoss != 2550 {
		t.Fatalf("short stop = %v, want 2550", got.StopLoss)
	}
	if got.TakeProfit != 2250 {
		t.Fatalf("short target = %v, want 2250", got.TakeProfit)
	}
	if got.Quantity != 20 {
		t.Fatalf("quantity = %d, want 20", got.Quantity)
	}
}

func TestSizeCappedByAvailableCash(t *testing.T) {
	p := baseParams()
	p.AvailableCash = d("10000") // fits only 4 shares at 2450

	got := Size(p, DefaultConfig())
	if got.Quantity != 4 {
		t.Fatalf("quantity = %d, want 4", got.Quantity)
	}
}

func TestSizeCappedByMaxPositionSize(t *testing.T) {
	p := baseParams()
	p.Mandate.MaxPositionSize = d("25000") // 10 shares

	got := Size(p, DefaultConfig())
	if got.Quantity != 10 {
		t.Fatalf("quantity = %d, want 10", got.Quantity)
	}

	p = baseParams()
	p.Mandate.MaxPositionPercent = 10 // 10,000 -> 4 shares

	got = Size(p, DefaultConfig())
	if got.Quantity != 4 {
		t.Fatalf("quantity = %d, want 4", got.Quantity)
	}
}

func TestSizeCappedByKellyLite(t *testing.T) {
	p := baseParams()
	p.Signal.Confidence = 0.2
	p.Signal.EdgeEstimate = 0.02 // fraction = 0.2*0.02/0.04 = 0.10

	got := Size(p, DefaultConfig())
	// 10% of 100,000 = 10,000 -> 4 shares, below the 20-share risk budget.
	if got.Quantity != 4 {
		t.Fatalf("quantity = %d, want 4", got.Quantity)
	}
}

func TestSizeZeroQuantityMeansNoFit(t *testing.T) {
	p := baseParams()
	p.AvailableCash = d("1000") // under one share

	got := Size(p, DefaultConfig())
	if got.Quantity != 0 {
		t.Fatalf("quantity = %d, want 0", got.Quantity)
	}

	p = baseParams()
	p.Price = 0
	if got := Size(p, DefaultConfig()); got.Quantity != 0 {
		t.Fatalf("zero price must size to zero, got %d", got.Quantity)
	}
}

// Increasing max risk per trade must never shrink the sized quantity.
func TestSizeMonotonicInRiskBudget(t *testing.T) {
	prev := int64(-1)
	for _, riskPct := range []float64{0.5, 1.0, 2.0, 4.0, 8.0} {
		p := baseParams()
		p.Mandate.MaxRiskPerTradePercent = riskPct

		got := Size(p, DefaultConfig())
		if got.Quantity < prev {
			t.Fatalf("quantity decreased from %d to %d at risk %.1f%%",
				prev, got.Quantity, riskPct)
		}
		prev = got.Quantity
	}
}

func TestSizeOverrideMultipliers(t *testing.T) {
	p := baseParams()
	p.Signal.Override = &model.PlaybookOverride{
		Name:         "buyback-bullish",
		SLMultiplier: 1.0, // stop at 2400, risk/share 50
		TPMultiplier: 4.5,
	}

	got := Size(p, DefaultConfig())
	if got.StopLoss != 2400 {
		t.Fatalf("override stop = %v, want 2400", got.StopLoss)
	}
	// Tighter stop doubles the risk-budget quantity (40), but the Kelly
	// cap (0.5 x 100,000 / 2450 = 20.4) holds it at 20.
	if got.Quantity != 20 {
		t.Fatalf("quantity = %d, want 20", got.Quantity)
	}
}

func TestSizeTrancheSplit(t *testing.T) {
	p := baseParams()
	p.Signal.Override = &model.PlaybookOverride{
		Name: "regulatory-penalty",
		TranchePlan: []model.TrancheSlice{
			{Percent: 50, DelayDays: 0},
			{Percent: 50, DelayDays: 2},
		},
	}

	got := Size(p, DefaultConfig())
	if len(got.Tranches) != 2 {
		t.Fatalf("tranches = %d, want 2", len(got.Tranches))
	}
	if got.Quantity != 10 || got.Tranches[0].Quantity != 10 {
		t.Fatalf("first tranche = %d (quantity %d), want 10", got.Tranches[0].Quantity, got.Quantity)
	}
	if got.Tranches[1].Quantity != 10 || got.Tranches[1].DelayDays != 2 {
		t.Fatalf("second tranche = %+v", got.Tranches[1])
	}
	// Only the first tranche is funded now.
	if !got.Notional.Equal(d("24500")) {
		t.Fatalf("notional = %s, want 24500", got.Notional.String())
	}

	// Scarce cash caps the first tranche only; the plan itself is intact.
	p.AvailableCash = d("5000")
	got = Size(p, DefaultConfig())
	if got.Quantity != 2 || got.Tranches[0].Quantity != 2 {
		t.Fatalf("cash-capped first tranche = %d, want 2", got.Quantity)
	}
	if got.Tranches[1].Quantity != 10 {
		t.Fatalf("later tranche resized prematurely: %+v", got.Tranches[1])
	}
}
