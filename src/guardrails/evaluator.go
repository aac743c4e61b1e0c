package guardrails

import (
	"time"

	log "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

// Check names, in fixed evaluation order. The result column for each is set
// from the check of the same position; adding a check means adding a column.
const (
	CheckLiquidity         = "liquidity"
	CheckPositionSize      = "position_size"
	CheckSectorExposure    = "sector_exposure"
	CheckEventWindow       = "event_window"
	CheckRegime            = "regime"
	CheckCatalystFreshness = "catalyst_freshness"
)

type namedCheck struct {
	name string
	fn   checkFn
}

func allChecks() []namedCheck {
	return []namedCheck{
		{CheckLiquidity, checkLiquidity},
		{CheckPositionSize, checkPositionSizeRisk},
		{CheckSectorExposure, checkSectorExposure},
		{CheckEventWindow, checkEventWindow},
		{CheckRegime, checkRegime},
		{CheckCatalystFreshness, checkCatalystFreshness},
	}
}

// Evaluate runs every check and folds the outcomes into one result. All six
// always run; a failing check never short-circuits the rest, so one result
// row carries the full risk picture for the audit trail.
//
// PassedAll is strict: any WARNING or CRITICAL finding clears it, INFO
// findings do not. HasCriticalFailure alone decides blocking downstream.
func Evaluate(in *Input, cfg Config) *model.GuardrailResult {
	start := time.Now()

	res := &model.GuardrailResult{
		AccountID: in.Account.ID,
		SignalID:  in.Signal.ID,
		Symbol:    in.Signal.Symbol,
		PassedAll: true,
	}

	for _, c := range allChecks() {
		passed, findings := c.fn(in, cfg)
		res.SetCheck(c.name, passed)
		res.Warnings = append(res.Warnings, findings...)

		for _, w := range findings {
			switch w.Severity {
			case model.SeverityCritical:
				res.HasCriticalFailure = true
				res.PassedAll = false
			case model.SeverityWarning:
				res.PassedAll = false
			}
		}
	}

	res.EvaluationDurationMs = float64(time.Since(start).Microseconds()) / 1000.0

	log.WithFields(log.Fields{
		"repo":        "guardrails",
		"account_id":  in.Account.ID,
		"signal_id":   in.Signal.ID,
		"symbol":      in.Signal.Symbol,
		"passed_all":  res.PassedAll,
		"critical":    res.HasCriticalFailure,
		"warnings":    len(res.Warnings),
		"duration_ms": res.EvaluationDurationMs,
	}).Info("guardrail evaluation complete")

	return res
}
