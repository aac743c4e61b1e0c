package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountObjective string

const (
	ObjectiveMaxProfit     AccountObjective = "MAX_PROFIT"
	ObjectiveRiskMinimized AccountObjective = "RISK_MINIMIZED"
	ObjectiveBalanced      AccountObjective = "BALANCED"
)

// Account holds the capital state machine for one independent trading account.
// Invariant: AvailableCash + ReservedCash + DeployedCash == TotalCapital + RealizedPnl.
type Account struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Name          string           `gorm:"size:100;not null" json:"name"`
	Objective     AccountObjective `gorm:"size:50;not null;default:BALANCED" json:"objective"`
	TotalCapital  decimal.Decimal  `gorm:"type:numeric" json:"total_capital"`
	AvailableCash decimal.Decimal  `gorm:"type:numeric" json:"available_cash"`
	ReservedCash  decimal.Decimal  `gorm:"type:numeric" json:"reserved_cash"`
	DeployedCash  decimal.Decimal  `gorm:"type:numeric" json:"deployed_cash"`
	RealizedPnl   decimal.Decimal  `gorm:"type:numeric" json:"realized_pnl"`
	// EmergencyBufferPercent is withheld from deployable cash, never allocated.
	EmergencyBufferPercent float64   `json:"emergency_buffer_percent"`
	Paused                 bool      `gorm:"not null;default:false" json:"paused"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}
