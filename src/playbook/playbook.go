package playbook

import (
	"sync"

	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

// Registry maps playbook names to their sizing overrides. Playbooks are pure
// parameter sets: attaching one to a signal never mutates the mandate or the
// base sizing config, it only shadows multipliers for that one trade.
type Registry struct {
	mu    sync.RWMutex
	plays map[string]model.PlaybookOverride
}

func NewRegistry() *Registry {
	return &Registry{plays: make(map[string]model.PlaybookOverride)}
}

// Default returns a registry preloaded with the standard event playbooks.
func Default() *Registry {
	r := NewRegistry()

	// Strong catalyst, run it harder and give it the lane.
	r.Register(model.PlaybookOverride{
		Name:          "earnings-beat",
		PriorityBoost: 1.5,
		TPMultiplier:  5.0,
	})

	// Buybacks grind, not gap: tighter stop, quicker target.
	r.Register(model.PlaybookOverride{
		Name:          "buyback-bullish",
		PriorityBoost: 1.2,
		SLMultiplier:  1.5,
		TPMultiplier:  3.0,
	})

	// Headline risk resolves in stages; stage the entry with it.
	r.Register(model.PlaybookOverride{
		Name:          "regulatory-penalty",
		PriorityBoost: 1.1,
		SLMultiplier:  2.5,
		TranchePlan: []model.TrancheSlice{
			{Percent: 50, DelayDays: 0},
			{Percent: 50, DelayDays: 2},
		},
	})

	return r
}

func (r *Registry) Register(p model.PlaybookOverride) {
	if p.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays[p.Name] = p
}

// Lookup returns the override for a playbook name, or nil when the name is
// unknown. An unknown name is logged and the signal proceeds un-overridden.
func (r *Registry) Lookup(name string) *model.PlaybookOverride {
	if name == "" {
		return nil
	}

	r.mu.RLock()
	p, ok := r.plays[name]
	r.mu.RUnlock()
	if !ok {
		logger.WithFields(map[string]interface{}{
			"repo":     "playbook",
			"op":       "Lookup",
			"playbook": name,
		}).Warn("unknown playbook name, signal proceeds without override")
		return nil
	}

	out := p
	return &out
}
