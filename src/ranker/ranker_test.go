package ranker

import (
	"testing"

	"allocengine/src/model"
)

func sig(id, symbol string, edge, conf float64) *model.Signal {
	return &model.Signal{ID: id, Symbol: symbol, EdgeEstimate: edge, Confidence: conf}
}

func ids(signals []*model.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.ID
	}
	return out
}

func TestRankMaxProfitPrefersEdgeTimesConfidence(t *testing.T) {
	signals := []*model.Signal{
		sig("a", "AAA", 0.05, 0.5), // 0.025
		sig("b", "BBB", 0.10, 0.4), // 0.040
		sig("c", "CCC", 0.02, 0.9), // 0.018
	}

	got := ids(Rank(signals, model.ObjectiveMaxProfit, nil))
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank = %v, want %v", got, want)
		}
	}
}

func TestRankRiskMinimizedPenalizesVolatility(t *testing.T) {
	// Same edge*conf, but BBB is three times as volatile.
	signals := []*model.Signal{
		sig("a", "AAA", 0.06, 0.6),
		sig("b", "BBB", 0.06, 0.6),
	}
	vol := func(symbol string) float64 {
		if symbol == "BBB" {
			return 0.06
		}
		return 0.02
	}

	got := ids(Rank(signals, model.ObjectiveRiskMinimized, vol))
	if got[0] != "a" {
		t.Fatalf("expected low-volatility signal first, got %v", got)
	}

	// MAX_PROFIT ignores volatility entirely: the tie falls through to
	// the deterministic symbol tie-break.
	got = ids(Rank(signals, model.ObjectiveMaxProfit, vol))
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected symbol-order tie-break, got %v", got)
	}
}

func TestRankTieBreaksDeterministic(t *testing.T) {
	// All three score 0.125 under MAX_PROFIT (exact in binary floats);
	// higher confidence wins the tie, then symbol order.
	signals := []*model.Signal{
		sig("z", "ZZZ", 0.5, 0.25),
		sig("y", "YYY", 0.5, 0.25),
		sig("x", "XXX", 0.25, 0.5),
	}

	got := ids(Rank(signals, model.ObjectiveMaxProfit, nil))
	want := []string{"x", "y", "z"} // conf 0.5 first, then YYY < ZZZ
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank = %v, want %v", got, want)
		}
	}

	// Repeated runs stay stable.
	for i := 0; i < 5; i++ {
		again := ids(Rank(signals, model.ObjectiveMaxProfit, nil))
		for j := range want {
			if again[j] != want[j] {
				t.Fatalf("rank not deterministic on run %d: %v", i, again)
			}
		}
	}
}

func TestPriorityBoostRaisesScore(t *testing.T) {
	plain := sig("a", "AAA", 0.05, 0.6)
	boosted := sig("b", "AAA", 0.05, 0.6)
	boosted.Override = &model.PlaybookOverride{Name: "earnings-beat", PriorityBoost: 1.5}

	if Score(boosted, model.ObjectiveBalanced, nil) <= Score(plain, model.ObjectiveBalanced, nil) {
		t.Fatal("priority boost must raise the score")
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	signals := []*model.Signal{
		sig("a", "AAA", 0.01, 0.5),
		sig("b", "BBB", 0.09, 0.5),
	}

	_ = Rank(signals, model.ObjectiveMaxProfit, nil)
	if signals[0].ID != "a" || signals[1].ID != "b" {
		t.Fatal("Rank must not reorder the caller's slice")
	}
}
