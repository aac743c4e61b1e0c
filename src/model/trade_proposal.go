package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalStatusProposed ProposalStatus = "PROPOSED"
	ProposalStatusDeployed ProposalStatus = "DEPLOYED"
	ProposalStatusReleased ProposalStatus = "RELEASED"
	ProposalStatusExpired  ProposalStatus = "EXPIRED"
)

// ProposalTranche is one staged lot of a tranche-split proposal. Only the
// first tranche is sized against currently available cash; later tranches
// carry a release condition and are re-sized against a future ledger query.
type ProposalTranche struct {
	Quantity         int64  `json:"quantity"`
	ReleaseCondition string `json:"release_condition"`
	DelayDays        int    `json:"delay_days"`
}

// TradeProposal is the engine's output on a full guardrail pass: a sized,
// cash-reserved trade handed to the execution collaborator.
type TradeProposal struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`
	SignalID  string    `gorm:"size:100;index" json:"signal_id"`
	Symbol    string    `gorm:"index;not null" json:"symbol"`
	Direction Direction `gorm:"size:10;not null" json:"direction"`

	Quantity int64             `json:"quantity"`
	Tranches []ProposalTranche `gorm:"serializer:json" json:"tranches,omitempty"`

	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	ReservedAmount decimal.Decimal `gorm:"type:numeric" json:"reserved_amount"`
	ReservationID  string          `gorm:"size:100;index" json:"reservation_id"`

	RiskAmount      float64 `json:"risk_amount"`
	RewardAmount    float64 `json:"reward_amount"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`

	GuardrailResultID *uint `gorm:"index" json:"guardrail_result_id,omitempty"`

	Status    ProposalStatus `gorm:"size:50;not null;default:PROPOSED" json:"status"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
