package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mandate is the rule set governing what an account may trade.
// Mandates are versioned: edits create a new row with Version+1 and prior
// versions are never mutated, so past allocation decisions stay auditable.
// The current mandate for an account is the row with the highest version.
type Mandate struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	AccountID uint `gorm:"index;not null" json:"account_id"`
	Version   int  `gorm:"index;not null;default:1" json:"version"`

	HorizonMinDays int `json:"horizon_min_days"`
	HorizonMaxDays int `json:"horizon_max_days"`

	// Empty slices mean unrestricted.
	AllowedSectors    []string `gorm:"serializer:json" json:"allowed_sectors"`
	AllowedStrategies []string `gorm:"serializer:json" json:"allowed_strategies"`

	// MaxPositionSize caps the notional of a single position in currency.
	// MaxPositionPercent caps it as a percentage of total capital; whichever
	// produces the smaller notional wins. Zero means unset.
	MaxPositionSize    decimal.Decimal `gorm:"type:numeric" json:"max_position_size"`
	MaxPositionPercent float64         `json:"max_position_percent"`

	MaxRiskPerTradePercent   float64 `json:"max_risk_per_trade_percent"`
	MaxSectorExposurePercent float64 `json:"max_sector_exposure_percent"`
	MaxOpenPositions         int     `json:"max_open_positions"`

	SLMultiplier float64 `json:"sl_multiplier"`
	TPMultiplier float64 `json:"tp_multiplier"`

	EarningsBlackoutDays int `json:"earnings_blackout_days"`

	// RiskPosture gates the regime guardrail: CONSERVATIVE mandates warn on
	// HIGH volatility regimes, AGGRESSIVE ones tolerate them.
	RiskPosture string `gorm:"size:50;default:CONSERVATIVE" json:"risk_posture"`

	CreatedAt time.Time `json:"created_at"`
}

const (
	RiskPostureConservative = "CONSERVATIVE"
	RiskPostureAggressive   = "AGGRESSIVE"
)

// SectorAllowed reports whether the mandate permits the given sector.
func (m *Mandate) SectorAllowed(sector string) bool {
	return containsOrUnrestricted(m.AllowedSectors, sector)
}

// StrategyAllowed reports whether the mandate permits the given strategy.
func (m *Mandate) StrategyAllowed(strategy string) bool {
	return containsOrUnrestricted(m.AllowedStrategies, strategy)
}

func containsOrUnrestricted(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
