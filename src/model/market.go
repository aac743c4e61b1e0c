package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot bundles the already-fetched external inputs a guardrail
// evaluation and sizing pass need for one symbol. The core never fetches
// these itself; the market-data collaborator supplies them.
type MarketSnapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	ATR    float64 `json:"atr"`

	// ADV20Value is the trailing 20-day average daily traded value in
	// currency. Zero means no volume history is available.
	ADV20Value float64 `json:"adv_20_value"`

	VolatilityRegime string `json:"volatility_regime"` // LOW | MED | HIGH
	LiquidityRegime  string `json:"liquidity_regime"`  // LOW | MEDIUM | HIGH

	// NextEventDate is the nearest known earnings/corporate-action date.
	NextEventDate *time.Time `json:"next_event_date,omitempty"`

	AsOf time.Time `json:"as_of"`
}

const (
	RegimeLow    = "LOW"
	RegimeMed    = "MED"
	RegimeHigh   = "HIGH"
	RegimeMedium = "MEDIUM"
)

// PnLUpdate is pushed by the P&L collaborator and drives the kill-switch
// monitor.
type PnLUpdate struct {
	AccountID     uint            `json:"account_id"`
	DailyRealized decimal.Decimal `json:"daily_realized"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Drawdown      decimal.Decimal `json:"drawdown"`
	Timestamp     time.Time       `json:"timestamp"`
}
