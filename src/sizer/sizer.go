package sizer

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"allocengine/src/model"
)

// Config bounds the Kelly-lite sizing cap.
type Config struct {
	// KellyCap is the largest fraction of total capital one position may
	// take, deliberately below the full Kelly fraction.
	KellyCap float64

	// AssumedVariance is the variance proxy dividing confidence x edge in
	// the Kelly-lite fraction.
	AssumedVariance float64

	// FallbackATRPercent stands in when no ATR estimate is supplied,
	// expressed as a fraction of the entry price.
	FallbackATRPercent float64
}

func DefaultConfig() Config {
	return Config{
		KellyCap:           0.5,
		AssumedVariance:    0.04,
		FallbackATRPercent: 0.02,
	}
}

// Params is everything a sizing pass needs. All external data (price, ATR)
// arrives already fetched; the sizer performs no I/O.
type Params struct {
	Signal        *model.Signal
	Mandate       *model.Mandate
	TotalCapital  decimal.Decimal
	AvailableCash decimal.Decimal
	Price         float64
	ATR           float64
}

// Sized is the concrete outcome of a sizing pass. Quantity 0 means "no size
// fits" and is filtered out downstream; it is not an error.
type Sized struct {
	Quantity   int64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64

	// Notional is Quantity x EntryPrice, the amount to reserve.
	Notional decimal.Decimal

	RiskAmount      float64
	RewardAmount    float64
	RiskRewardRatio float64

	// Tranches is non-empty only when a playbook override staged the
	// deployment. Quantity then covers the first tranche only; later
	// tranches are re-sized against a future ledger query when their
	// release condition fires.
	Tranches []model.ProposalTranche
}

// Size converts a ranked signal plus account capital into a concrete
// quantity. Caps compose: volatility-targeted risk budget, mandate max
// position size, Kelly-lite fraction, then available cash; quantity floors
// at zero. Increasing the mandate's max risk per trade can only grow the
// result, never shrink it.
func Size(p Params, cfg Config) Sized {
	entry := p.Price
	if entry <= 0 {
		return Sized{}
	}

	atr := p.ATR
	if atr <= 0 {
		atr = entry * cfg.FallbackATRPercent
	}

	slMult, tpMult := effectiveMultipliers(p.Signal, p.Mandate)

	var stop, target float64
	if p.Signal.Direction == model.DirectionShort {
		stop = entry + atr*slMult
		target = entry - atr*tpMult
	} else {
		stop = entry - atr*slMult
		target = entry + atr*tpMult
	}

	riskPerShare := math.Abs(entry - stop)
	if riskPerShare <= 0 {
		return Sized{}
	}

	totalCapital, _ := p.TotalCapital.Float64()
	available, _ := p.AvailableCash.Float64()

	// Volatility-targeted base size from the per-trade risk budget.
	riskBudget := totalCapital * p.Mandate.MaxRiskPerTradePercent / 100.0
	qty := int64(math.Floor(riskBudget / riskPerShare))

	// Mandate position-size caps (currency and percent of capital).
	if maxNotional := positionCap(p.Mandate, totalCapital); maxNotional > 0 {
		qty = minQty(qty, int64(math.Floor(maxNotional/entry)))
	}

	// Kelly-lite: fraction = clamp(confidence x edge / variance, 0, cap).
	fraction := p.Signal.Confidence * math.Abs(p.Signal.EdgeEstimate) / cfg.AssumedVariance
	fraction = clamp(fraction, 0, cfg.KellyCap)
	qty = minQty(qty, int64(math.Floor(fraction*totalCapital/entry)))

	if qty <= 0 {
		return Sized{}
	}

	// Tranche plans split before the cash cap: only the first tranche is
	// funded from currently available cash.
	var tranches []model.ProposalTranche
	firstQty := qty
	if p.Signal.Override != nil && len(p.Signal.Override.TranchePlan) > 0 {
		tranches = splitTranches(qty, p.Signal.Override.TranchePlan)
		firstQty = tranches[0].Quantity
	}

	firstQty = minQty(firstQty, int64(math.Floor(available/entry)))
	if firstQty <= 0 {
		return Sized{}
	}
	if len(tranches) > 0 {
		tranches[0].Quantity = firstQty
	}

	notional := decimal.NewFromFloat(entry).Mul(decimal.NewFromInt(firstQty))
	riskAmount := riskPerShare * float64(firstQty)
	rewardAmount := math.Abs(target-entry) * float64(firstQty)

	rr := 0.0
	if riskAmount > 0 {
		rr = rewardAmount / riskAmount
	}

	return Sized{
		Quantity:        firstQty,
		EntryPrice:      entry,
		StopLoss:        stop,
		TakeProfit:      target,
		Notional:        notional,
		RiskAmount:      riskAmount,
		RewardAmount:    rewardAmount,
		RiskRewardRatio: rr,
		Tranches:        tranches,
	}
}

// effectiveMultipliers resolves SL/TP multipliers, letting a playbook
// override shadow the mandate's values. Applied as a pure transform before
// sizing, never by mutating the signal or mandate.
func effectiveMultipliers(signal *model.Signal, m *model.Mandate) (sl, tp float64) {
	sl, tp = m.SLMultiplier, m.TPMultiplier
	if sl <= 0 {
		sl = 2.0
	}
	if tp <= 0 {
		tp = 4.0
	}
	if o := signal.Override; o != nil {
		if o.SLMultiplier > 0 {
			sl = o.SLMultiplier
		}
		if o.TPMultiplier > 0 {
			tp = o.TPMultiplier
		}
	}
	return sl, tp
}

func positionCap(m *model.Mandate, totalCapital float64) float64 {
	cap := 0.0
	if m.MaxPositionSize.IsPositive() {
		cap, _ = m.MaxPositionSize.Float64()
	}
	if m.MaxPositionPercent > 0 {
		pctCap := totalCapital * m.MaxPositionPercent / 100.0
		if cap == 0 || pctCap < cap {
			cap = pctCap
		}
	}
	return cap
}

func splitTranches(qty int64, plan []model.TrancheSlice) []model.ProposalTranche {
	tranches := make([]model.ProposalTranche, 0, len(plan))
	remaining := qty
	for i, slice := range plan {
		var q int64
		if i == len(plan)-1 {
			q = remaining
		} else {
			q = int64(math.Floor(float64(qty) * slice.Percent / 100.0))
			if q > remaining {
				q = remaining
			}
		}
		remaining -= q
		tranches = append(tranches, model.ProposalTranche{
			Quantity:         q,
			ReleaseCondition: fmt.Sprintf("delay_days=%d", slice.DelayDays),
			DelayDays:        slice.DelayDays,
		})
	}
	return tranches
}

func minQty(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
