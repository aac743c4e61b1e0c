package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionReserve         TransactionType = "RESERVE"
	TransactionDeploy          TransactionType = "DEPLOY"
	TransactionReturn          TransactionType = "RETURN"
	TransactionTransferIn      TransactionType = "TRANSFER_IN"
	TransactionTransferOut     TransactionType = "TRANSFER_OUT"
	TransactionSIPContribution TransactionType = "SIP_CONTRIBUTION"
)

// CapitalTransaction is one append-only ledger entry. Account balances are
// derivable by replaying these rows; they are the audit source of truth and
// are never updated or deleted.
type CapitalTransaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	AccountID uint            `gorm:"index;not null" json:"account_id"`
	Type      TransactionType `gorm:"size:50;not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:numeric" json:"amount"`

	// Reference ties the entry to a signal, position or reservation id.
	Reference string `gorm:"size:100;index" json:"reference"`

	// CounterAccountID links the paired row of an inter-account transfer.
	CounterAccountID *uint `gorm:"index" json:"counter_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
