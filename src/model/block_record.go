package model

import "time"

const (
	BlockStatusOpen     = "OPEN"
	BlockStatusResolved = "RESOLVED"
)

// BlockRecord marks a (signal, account) pair rejected by a critical guardrail
// failure. The execution layer uses it to avoid re-attempting the same trade;
// re-evaluating the pair while a record is still open must not create a
// duplicate.
type BlockRecord struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	AccountID   uint     `gorm:"index;not null" json:"account_id"`
	SignalID    string   `gorm:"size:100;index;not null" json:"signal_id"`
	Symbol      string   `gorm:"index" json:"symbol"`
	ReasonCodes []string `gorm:"serializer:json" json:"reason_codes"`

	Status     string     `gorm:"size:50;not null;default:OPEN" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
