package guardrails

import (
	"fmt"
	"math"
	"time"

	"allocengine/src/model"
)

// Config carries the guardrail thresholds. Defaults mirror the production
// values; each can be externalized via env config at the call site.
type Config struct {
	ADVLookbackDays        int
	MaxTradeToADVRatio     float64
	EventBlackoutDays      int
	SectorExposureMaxPct   float64
	CatalystFreshnessHours float64
}

func DefaultConfig() Config {
	return Config{
		ADVLookbackDays:        20,
		MaxTradeToADVRatio:     0.05,
		EventBlackoutDays:      2,
		SectorExposureMaxPct:   30.0,
		CatalystFreshnessHours: 24,
	}
}

// Input is a complete, already-fetched picture of one (signal, account)
// proposal. Checks are pure functions over it: no I/O, no clock reads
// (Now is injected), no mutation. OpenPositions is a consistent snapshot
// taken at evaluation time.
type Input struct {
	Signal        *model.Signal
	Mandate       *model.Mandate
	Account       *model.Account
	Market        *model.MarketSnapshot
	Quantity      int64
	EntryPrice    float64
	StopLoss      float64
	OpenPositions []model.Position
	Now           time.Time
}

func (in *Input) notional() float64 {
	return in.EntryPrice * float64(in.Quantity)
}

func (in *Input) totalCapital() float64 {
	total, _ := in.Account.TotalCapital.Add(in.Account.RealizedPnl).Float64()
	return total
}

// checkFn is the uniform contract every guardrail implements: passed plus
// zero or more structured findings. A finding's severity decides blocking
// behavior in the reducer, never the check itself.
type checkFn func(in *Input, cfg Config) (bool, []model.GuardrailWarning)

func finding(sev model.GuardrailSeverity, code, msg string, details map[string]any) []model.GuardrailWarning {
	return []model.GuardrailWarning{{Severity: sev, Code: code, Message: msg, Details: details}}
}

// checkLiquidity: the trade's notional must stay within a fixed fraction of
// the symbol's trailing average daily traded value.
func checkLiquidity(in *Input, cfg Config) (bool, []model.GuardrailWarning) {
	if in.Market.ADV20Value <= 0 {
		return true, finding(model.SeverityInfo,
			"INSUFFICIENT_VOLUME_DATA",
			fmt.Sprintf("no volume history for %s", in.Signal.Symbol),
			map[string]any{"lookback_days": cfg.ADVLookbackDays})
	}

	ratio := in.notional() / in.Market.ADV20Value
	if ratio > cfg.MaxTradeToADVRatio {
		return false, finding(model.SeverityCritical,
			"LIQUIDITY_BELOW_THRESHOLD",
			fmt.Sprintf("trade notional exceeds %.1f%% of ADV-%d", cfg.MaxTradeToADVRatio*100, cfg.ADVLookbackDays),
			map[string]any{"ratio": ratio, "adv_value": in.Market.ADV20Value})
	}
	return true, nil
}

// checkPositionSizeRisk: risk at stop must not exceed the mandate's per-trade
// risk limit.
func checkPositionSizeRisk(in *Input, _ Config) (bool, []model.GuardrailWarning) {
	if in.Mandate.MaxRiskPerTradePercent <= 0 {
		return true, nil
	}

	capital := in.totalCapital()
	if capital <= 0 {
		return true, nil
	}

	riskAtStop := math.Abs(in.EntryPrice-in.StopLoss) * float64(in.Quantity)
	riskPct := riskAtStop / capital * 100.0
	if riskPct > in.Mandate.MaxRiskPerTradePercent {
		return false, finding(model.SeverityCritical,
			"POSITION_SIZE_EXCEEDED",
			"risk per trade exceeds mandate limit",
			map[string]any{
				"risk_percent": riskPct,
				"limit":        in.Mandate.MaxRiskPerTradePercent,
				"total_risk":   riskAtStop,
			})
	}
	return true, nil
}

// checkSectorExposure: open notional in the signal's sector plus this
// proposal must not exceed the mandate's sector cap.
func checkSectorExposure(in *Input, cfg Config) (bool, []model.GuardrailWarning) {
	if in.Signal.Sector == "" {
		return true, finding(model.SeverityInfo,
			"SECTOR_UNKNOWN",
			"sector not provided; exposure check may be imprecise", nil)
	}

	capital := in.totalCapital()
	if capital <= 0 {
		return true, nil
	}

	sectorValue := in.notional()
	for i := range in.OpenPositions {
		pos := &in.OpenPositions[i]
		if pos.Status == model.PositionStatusOpen && pos.Sector == in.Signal.Sector {
			sectorValue += pos.Notional()
		}
	}

	limit := in.Mandate.MaxSectorExposurePercent
	if limit <= 0 {
		limit = cfg.SectorExposureMaxPct
	}

	exposurePct := sectorValue / capital * 100.0
	if exposurePct > limit {
		return false, finding(model.SeverityCritical,
			"SECTOR_EXPOSURE_EXCEEDED",
			"sector exposure exceeds limit",
			map[string]any{
				"sector":           in.Signal.Sector,
				"exposure_percent": exposurePct,
				"limit_percent":    limit,
			})
	}
	return true, nil
}

// checkEventWindow: a known earnings/corporate-action date inside the
// blackout window is a warning, not a block; the caller may be trading the
// event on purpose.
func checkEventWindow(in *Input, cfg Config) (bool, []model.GuardrailWarning) {
	if in.Market.NextEventDate == nil {
		return true, nil
	}

	blackoutDays := cfg.EventBlackoutDays
	if in.Mandate.EarningsBlackoutDays > 0 {
		blackoutDays = in.Mandate.EarningsBlackoutDays
	}

	window := time.Duration(blackoutDays) * 24 * time.Hour
	gap := in.Market.NextEventDate.Sub(in.Now)
	if gap < 0 {
		gap = -gap
	}

	if gap <= window {
		return false, finding(model.SeverityWarning,
			"EVENT_WINDOW_WARNING",
			fmt.Sprintf("corporate event within %d-day blackout window", blackoutDays),
			map[string]any{"event_date": in.Market.NextEventDate.Format("2006-01-02")})
	}
	return true, nil
}

// checkRegime: a high-volatility regime under a conservative mandate is
// flagged but never blocks.
func checkRegime(in *Input, _ Config) (bool, []model.GuardrailWarning) {
	if in.Market.VolatilityRegime == "" {
		return true, finding(model.SeverityInfo,
			"REGIME_UNKNOWN", "no regime label available", nil)
	}

	if in.Mandate.RiskPosture != model.RiskPostureAggressive &&
		in.Market.VolatilityRegime == model.RegimeHigh {
		return false, finding(model.SeverityWarning,
			"REGIME_MISMATCH",
			"volatility regime incompatible with mandate risk posture",
			map[string]any{
				"volatility_regime": in.Market.VolatilityRegime,
				"risk_posture":      in.Mandate.RiskPosture,
			})
	}
	return true, nil
}

// checkCatalystFreshness: hot-path only. An event-driven signal whose
// catalyst is older than the freshness threshold carries no edge.
func checkCatalystFreshness(in *Input, cfg Config) (bool, []model.GuardrailWarning) {
	if !in.Signal.EventDriven() {
		return true, nil
	}
	if in.Signal.CatalystTime == nil {
		return true, finding(model.SeverityInfo,
			"CATALYST_TIMESTAMP_MISSING",
			"event-driven signal without catalyst timestamp", nil)
	}

	ageHours := in.Now.Sub(*in.Signal.CatalystTime).Hours()
	if ageHours > cfg.CatalystFreshnessHours {
		return false, finding(model.SeverityCritical,
			"CATALYST_STALE",
			"event catalyst is stale",
			map[string]any{
				"age_hours":       ageHours,
				"threshold_hours": cfg.CatalystFreshnessHours,
			})
	}
	return true, nil
}
