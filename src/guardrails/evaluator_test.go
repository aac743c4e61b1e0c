package guardrails

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"allocengine/src/model"
)

var evalNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// baseInput is the 20-share RELIANCE proposal: entry 2450, stop 2350,
// notional 49,000 against 100,000 capital. ADV of 2,000,000 keeps the
// liquidity ratio at 2.45%, comfortably under the 5% cap.
func baseInput() *Input {
	return &Input{
		Signal: &model.Signal{
			ID:        "sig-1",
			Symbol:    "RELIANCE",
			Direction: model.DirectionLong,
			Sector:    "ENERGY",
		},
		Mandate: &model.Mandate{
			AccountID:                1,
			MaxRiskPerTradePercent:   2.0,
			MaxSectorExposurePercent: 60.0,
			RiskPosture:              model.RiskPostureConservative,
		},
		Account: &model.Account{
			ID:           1,
			TotalCapital: decimal.NewFromInt(100000),
		},
		Market: &model.MarketSnapshot{
			Symbol:           "RELIANCE",
			Price:            2450,
			ATR:              50,
			ADV20Value:       2_000_000,
			VolatilityRegime: model.RegimeMedium,
		},
		Quantity:   20,
		EntryPrice: 2450,
		StopLoss:   2350,
		Now:        evalNow,
	}
}

func warningCodes(res *model.GuardrailResult) map[string]model.GuardrailSeverity {
	out := make(map[string]model.GuardrailSeverity, len(res.Warnings))
	for _, w := range res.Warnings {
		out[w.Code] = w.Severity
	}
	return out
}

func TestEvaluateAllPass(t *testing.T) {
	res := Evaluate(baseInput(), DefaultConfig())

	if !res.PassedAll {
		t.Fatalf("expected passed_all, got warnings %+v", res.Warnings)
	}
	if res.HasCriticalFailure {
		t.Fatal("unexpected critical failure")
	}
	for name, ok := range map[string]bool{
		"liquidity":          res.LiquidityCheck,
		"position_size":      res.PositionSizeCheck,
		"sector_exposure":    res.SectorExposureCheck,
		"event_window":       res.EventWindowCheck,
		"regime":             res.RegimeCheck,
		"catalyst_freshness": res.CatalystFreshnessCheck,
	} {
		if !ok {
			t.Fatalf("check %s did not pass", name)
		}
	}
}

// ADV-20 of 100,000 caps the trade at 5,000; the 49,000 notional must be
// blocked with LIQUIDITY_BELOW_THRESHOLD.
func TestEvaluateLiquidityCritical(t *testing.T) {
	in := baseInput()
	in.Market.ADV20Value = 100_000

	res := Evaluate(in, DefaultConfig())
	if res.LiquidityCheck {
		t.Fatal("liquidity check should fail")
	}
	if !res.HasCriticalFailure || res.PassedAll {
		t.Fatalf("expected critical block, got passed_all=%v critical=%v",
			res.PassedAll, res.HasCriticalFailure)
	}
	if sev := warningCodes(res)["LIQUIDITY_BELOW_THRESHOLD"]; sev != model.SeverityCritical {
		t.Fatalf("LIQUIDITY_BELOW_THRESHOLD severity = %q", sev)
	}
}

// Missing volume history degrades to an INFO finding, which passes the check
// and does not clear passed_all.
func TestEvaluateMissingVolumeDataIsInfo(t *testing.T) {
	in := baseInput()
	in.Market.ADV20Value = 0

	res := Evaluate(in, DefaultConfig())
	if !res.LiquidityCheck {
		t.Fatal("missing volume data must not fail the check")
	}
	if !res.PassedAll || res.HasCriticalFailure {
		t.Fatalf("INFO finding must not block: passed_all=%v critical=%v",
			res.PassedAll, res.HasCriticalFailure)
	}
	if sev := warningCodes(res)["INSUFFICIENT_VOLUME_DATA"]; sev != model.SeverityInfo {
		t.Fatalf("INSUFFICIENT_VOLUME_DATA severity = %q", sev)
	}
}

func TestEvaluatePositionSizeCritical(t *testing.T) {
	in := baseInput()
	in.Quantity = 30 // 3,000 risk at stop = 3% of capital, limit is 2%

	res := Evaluate(in, DefaultConfig())
	if res.PositionSizeCheck {
		t.Fatal("position size check should fail")
	}
	if sev := warningCodes(res)["POSITION_SIZE_EXCEEDED"]; sev != model.SeverityCritical {
		t.Fatalf("POSITION_SIZE_EXCEEDED severity = %q", sev)
	}

	// Exactly at the limit passes: 20 shares risk 2,000 = 2.0%.
	res = Evaluate(baseInput(), DefaultConfig())
	if !res.PositionSizeCheck {
		t.Fatal("risk exactly at the limit must pass")
	}
}

func TestEvaluateSectorExposureCritical(t *testing.T) {
	in := baseInput()
	in.OpenPositions = []model.Position{
		{Symbol: "ONGC", Sector: "ENERGY", Status: model.PositionStatusOpen,
			Quantity: 100, EntryPrice: 250}, // 25,000 open
		{Symbol: "TCS", Sector: "IT", Status: model.PositionStatusOpen,
			Quantity: 100, EntryPrice: 3500}, // other sector, ignored
		{Symbol: "IOC", Sector: "ENERGY", Status: model.PositionStatusClosed,
			Quantity: 400, EntryPrice: 100}, // closed, ignored
	}

	// 25,000 open + 49,000 proposed = 74% of capital, over the 60% cap.
	res := Evaluate(in, DefaultConfig())
	if res.SectorExposureCheck {
		t.Fatal("sector exposure check should fail")
	}
	if sev := warningCodes(res)["SECTOR_EXPOSURE_EXCEEDED"]; sev != model.SeverityCritical {
		t.Fatalf("SECTOR_EXPOSURE_EXCEEDED severity = %q", sev)
	}

	// A mandate without a sector limit falls back to the 30% default, which
	// this proposal alone (49%) already exceeds.
	in = baseInput()
	in.Mandate.MaxSectorExposurePercent = 0
	res = Evaluate(in, DefaultConfig())
	if res.SectorExposureCheck {
		t.Fatal("default sector cap should apply when the mandate has none")
	}
}

func TestEvaluateEventWindowWarns(t *testing.T) {
	in := baseInput()
	event := evalNow.Add(24 * time.Hour)
	in.Market.NextEventDate = &event

	res := Evaluate(in, DefaultConfig())
	if res.EventWindowCheck {
		t.Fatal("event window check should fail inside the blackout window")
	}
	if res.HasCriticalFailure {
		t.Fatal("event window is advisory, never critical")
	}
	if res.PassedAll {
		t.Fatal("a WARNING finding must clear passed_all")
	}
	if sev := warningCodes(res)["EVENT_WINDOW_WARNING"]; sev != model.SeverityWarning {
		t.Fatalf("EVENT_WINDOW_WARNING severity = %q", sev)
	}

	// Five days out is clear of the default 2-day window.
	far := evalNow.Add(5 * 24 * time.Hour)
	in.Market.NextEventDate = &far
	if res := Evaluate(in, DefaultConfig()); !res.EventWindowCheck {
		t.Fatal("event outside the window must pass")
	}
}

func TestEvaluateRegimeMismatchWarns(t *testing.T) {
	in := baseInput()
	in.Market.VolatilityRegime = model.RegimeHigh

	res := Evaluate(in, DefaultConfig())
	if res.RegimeCheck {
		t.Fatal("conservative posture in a high-vol regime should warn")
	}
	if res.HasCriticalFailure {
		t.Fatal("regime mismatch is advisory, never critical")
	}

	in.Mandate.RiskPosture = model.RiskPostureAggressive
	if res := Evaluate(in, DefaultConfig()); !res.RegimeCheck {
		t.Fatal("aggressive posture tolerates a high-vol regime")
	}
}

func TestEvaluateCatalystFreshness(t *testing.T) {
	in := baseInput()
	in.Signal.EventID = "evt-9"
	stale := evalNow.Add(-30 * time.Hour)
	in.Signal.CatalystTime = &stale

	res := Evaluate(in, DefaultConfig())
	if res.CatalystFreshnessCheck {
		t.Fatal("30-hour-old catalyst must fail the 24-hour freshness check")
	}
	if sev := warningCodes(res)["CATALYST_STALE"]; sev != model.SeverityCritical {
		t.Fatalf("CATALYST_STALE severity = %q", sev)
	}

	fresh := evalNow.Add(-2 * time.Hour)
	in.Signal.CatalystTime = &fresh
	if res := Evaluate(in, DefaultConfig()); !res.CatalystFreshnessCheck {
		t.Fatal("2-hour-old catalyst must pass")
	}

	// Non-event signals skip the check entirely.
	in.Signal.EventID = ""
	in.Signal.CatalystTime = &stale
	if res := Evaluate(in, DefaultConfig()); !res.CatalystFreshnessCheck {
		t.Fatal("catalyst freshness only applies to event-driven signals")
	}
}

// Two independent failures must both be reported; evaluation never stops at
// the first critical finding.
func TestEvaluateNeverShortCircuits(t *testing.T) {
	in := baseInput()
	in.Market.ADV20Value = 100_000
	in.Signal.EventID = "evt-9"
	stale := evalNow.Add(-48 * time.Hour)
	in.Signal.CatalystTime = &stale

	res := Evaluate(in, DefaultConfig())

	codes := warningCodes(res)
	if _, ok := codes["LIQUIDITY_BELOW_THRESHOLD"]; !ok {
		t.Fatalf("missing liquidity finding: %+v", res.Warnings)
	}
	if _, ok := codes["CATALYST_STALE"]; !ok {
		t.Fatalf("missing catalyst finding: %+v", res.Warnings)
	}
	got := res.CriticalCodes()
	if len(got) != 2 {
		t.Fatalf("critical codes = %v, want 2 entries", got)
	}

	// Checks between the two failures still ran and passed.
	if !res.PositionSizeCheck || !res.SectorExposureCheck || !res.EventWindowCheck || !res.RegimeCheck {
		t.Fatal("intermediate checks must still run")
	}
}

func TestEvaluateRecordsDuration(t *testing.T) {
	res := Evaluate(baseInput(), DefaultConfig())
	if res.EvaluationDurationMs < 0 {
		t.Fatalf("duration = %v", res.EvaluationDurationMs)
	}
}
