package mandate

import (
	"allocengine/src/model"
)

// Eligible is the pure mandate predicate: does this account's current rule
// set permit trading this signal at all. No side effects, deterministic.
// Ordering matters only for the paused gate, which short-circuits everything
// else: a tripped kill switch rejects the signal before any rule is read.
func Eligible(signal *model.Signal, m *model.Mandate, paused bool) bool {
	if paused {
		return false
	}

	if signal.HorizonDays < m.HorizonMinDays || signal.HorizonDays > m.HorizonMaxDays {
		return false
	}

	if !m.SectorAllowed(signal.Sector) {
		return false
	}

	if !m.StrategyAllowed(signal.Strategy) {
		return false
	}

	return true
}

// FilterEligible returns the subset of signals the mandate permits,
// preserving input order.
func FilterEligible(signals []*model.Signal, m *model.Mandate, paused bool) []*model.Signal {
	eligible := make([]*model.Signal, 0, len(signals))
	for _, s := range signals {
		if Eligible(s, m, paused) {
			eligible = append(eligible, s)
		}
	}
	return eligible
}
