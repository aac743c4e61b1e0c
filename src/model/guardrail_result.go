package model

import "time"

type GuardrailSeverity string

const (
	SeverityInfo     GuardrailSeverity = "INFO"
	SeverityWarning  GuardrailSeverity = "WARNING"
	SeverityCritical GuardrailSeverity = "CRITICAL"
)

// GuardrailWarning is one structured finding from a guardrail check.
type GuardrailWarning struct {
	Severity GuardrailSeverity `json:"severity"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Details  map[string]any    `json:"details,omitempty"`
}

// GuardrailResult records one (signal, account) evaluation attempt.
// Write-once: rows are never mutated after creation.
type GuardrailResult struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"index" json:"account_id"`
	SignalID  string `gorm:"size:100;index" json:"signal_id"`
	Symbol    string `gorm:"index" json:"symbol"`

	LiquidityCheck         bool `json:"liquidity_check"`
	PositionSizeCheck      bool `json:"position_size_check"`
	SectorExposureCheck    bool `json:"sector_exposure_check"`
	EventWindowCheck       bool `json:"event_window_check"`
	RegimeCheck            bool `json:"regime_check"`
	CatalystFreshnessCheck bool `json:"catalyst_freshness_check"`

	Warnings []GuardrailWarning `gorm:"serializer:json" json:"warnings"`

	PassedAll          bool `json:"passed_all"`
	HasCriticalFailure bool `json:"has_critical_failure"`

	EvaluationDurationMs float64   `json:"evaluation_duration_ms"`
	CreatedAt            time.Time `json:"created_at"`
}

// SetCheck maps a check name to its result column.
func (r *GuardrailResult) SetCheck(name string, passed bool) {
	switch name {
	case "liquidity":
		r.LiquidityCheck = passed
	case "position_size":
		r.PositionSizeCheck = passed
	case "sector_exposure":
		r.SectorExposureCheck = passed
	case "event_window":
		r.EventWindowCheck = passed
	case "regime":
		r.RegimeCheck = passed
	case "catalyst_freshness":
		r.CatalystFreshnessCheck = passed
	}
}

// CriticalCodes returns the codes of all CRITICAL findings, in order.
func (r *GuardrailResult) CriticalCodes() []string {
	var codes []string
	for _, w := range r.Warnings {
		if w.Severity == SeverityCritical {
			codes = append(codes, w.Code)
		}
	}
	return codes
}
