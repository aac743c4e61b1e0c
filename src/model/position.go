package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"index;not null" json:"account_id"`
	Symbol    string    `gorm:"index;not null" json:"symbol"`
	Sector    string    `gorm:"index" json:"sector"`
	Direction Direction `gorm:"size:10;not null" json:"direction"`
	Quantity  int64     `json:"quantity"`

	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	// DeployedAmount is the cash moved reserved->deployed when the position
	// opened; it returns to available on close.
	DeployedAmount decimal.Decimal `gorm:"type:numeric" json:"deployed_amount"`
	RealizedPnl    decimal.Decimal `gorm:"type:numeric" json:"realized_pnl"`

	Status   string     `gorm:"size:50;not null;default:OPEN" json:"status"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

// Notional is the position value at entry price.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}
