package ranker

import (
	"math"
	"sort"

	"allocengine/src/model"
)

// assumedVolatility stands in when a signal has no ATR-derived volatility
// estimate; expressed as a fraction of price, matching the original 2% fallback.
const assumedVolatility = 0.02

// VolatilityFn supplies the per-symbol volatility estimate (ATR / price)
// used by the risk-minimized objective. Returning 0 falls back to the
// assumed default.
type VolatilityFn func(symbol string) float64

// Score rates one signal under an account objective. Higher is better.
//
// MAX_PROFIT weights edge and confidence multiplicatively and tolerates
// volatility. RISK_MINIMIZED divides the same product by volatility and
// squares confidence, so conviction beats raw edge. BALANCED is the
// geometric midpoint of the two.
func Score(signal *model.Signal, objective model.AccountObjective, vol VolatilityFn) float64 {
	edge := math.Abs(signal.EdgeEstimate)
	conf := signal.Confidence

	v := assumedVolatility
	if vol != nil {
		if got := vol(signal.Symbol); got > 0 {
			v = got
		}
	}

	var base float64
	switch objective {
	case model.ObjectiveMaxProfit:
		base = edge * conf
	case model.ObjectiveRiskMinimized:
		base = (edge * conf * conf) / v
	default: // BALANCED
		maxProfit := edge * conf
		riskMin := (edge * conf * conf) / v
		base = math.Sqrt(maxProfit * riskMin)
	}

	if signal.Override != nil && signal.Override.PriorityBoost > 0 {
		base *= signal.Override.PriorityBoost
	}

	return base
}

// Rank orders signals best-first for the given objective. Ties break on
// higher confidence, then lexicographic symbol order, so the evaluation
// order is reproducible. Ranking never rejects a signal; it only decides
// who gets sized first when capital is scarce.
func Rank(signals []*model.Signal, objective model.AccountObjective, vol VolatilityFn) []*model.Signal {
	ranked := make([]*model.Signal, len(signals))
	copy(ranked, signals)

	scores := make(map[string]float64, len(ranked))
	for _, s := range ranked {
		scores[s.ID] = Score(s, objective, vol)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	return ranked
}
