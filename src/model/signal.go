package model

import "time"

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Signal is a ranked trading signal supplied by the signal generator
// collaborator. It is immutable once created; the engine never writes to it.
type Signal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EdgeEstimate float64   `json:"edge_estimate"` // expected % move
	Confidence   float64   `json:"confidence"`    // 0.0 - 1.0
	HorizonDays  int       `json:"horizon_days"`
	Sector       string    `json:"sector"`
	Strategy     string    `json:"strategy"`

	// EventID / CatalystTime are set for event-driven (hot path) signals.
	EventID      string     `json:"event_id,omitempty"`
	CatalystTime *time.Time `json:"catalyst_time,omitempty"`

	// Override carries playbook adjustments applied before sizing.
	Override *PlaybookOverride `json:"override,omitempty"`
}

// EventDriven reports whether the signal originated from an event catalyst
// and therefore must pass the catalyst freshness guardrail.
func (s *Signal) EventDriven() bool {
	return s.EventID != ""
}

// TrancheSlice is one staged step of a playbook tranche plan.
type TrancheSlice struct {
	Percent   float64 `json:"percent"`
	DelayDays int     `json:"delay_days"`
}

// PlaybookOverride is a tagged, pure adjustment of the base sizing parameters.
// Zero-valued fields mean "no override".
type PlaybookOverride struct {
	Name          string         `json:"name"`
	PriorityBoost float64        `json:"priority_boost"`
	SLMultiplier  float64        `json:"sl_multiplier"`
	TPMultiplier  float64        `json:"tp_multiplier"`
	TranchePlan   []TrancheSlice `json:"tranche_plan,omitempty"`
}
