package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVDaily is one cached daily candle. The trailing-N-day average daily
// traded value for the liquidity guardrail is derived from these rows.
type OHLCVDaily struct {
	ID       uint            `gorm:"primaryKey"`
	Symbol   string          `json:"symbol"   gorm:"type:varchar(50);not null;uniqueIndex:ux_ohlcv_daily_symbol_datetime,priority:1"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_ohlcv_daily_symbol_datetime,priority:2;index:idx_ohlcv_daily_datetime"`
	Open     decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (OHLCVDaily) TableName() string {
	return "ohlcv_daily"
}

// TradedValue is close * volume, the day's traded notional.
func (o OHLCVDaily) TradedValue() decimal.Decimal {
	return o.Close.Mul(o.Volume)
}
