package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type KillSwitchKind string

const (
	KillSwitchMaxDailyLoss KillSwitchKind = "MAX_DAILY_LOSS"
	KillSwitchMaxDrawdown  KillSwitchKind = "MAX_DRAWDOWN"
)

// KillSwitch pauses all new allocations for an account when a loss threshold
// is breached. Once tripped it stays tripped until an explicit manual reset;
// it never auto-clears, so a breach always forces human review.
type KillSwitch struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	AccountID uint           `gorm:"index;not null" json:"account_id"`
	Kind      KillSwitchKind `gorm:"size:50;not null" json:"kind"`

	// Threshold is a negative currency amount; the switch trips when the
	// monitored figure falls to or below it.
	Threshold decimal.Decimal `gorm:"type:numeric" json:"threshold"`

	Tripped      bool             `gorm:"not null;default:false" json:"tripped"`
	TrippedAt    *time.Time       `json:"tripped_at,omitempty"`
	TrippedValue *decimal.Decimal `gorm:"type:numeric" json:"tripped_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
