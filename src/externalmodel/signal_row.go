package externalmodel

import "time"

// SignalRow is one raw record from the signal generator's feed table. The
// schema is owned by the generator; rows are read-only here and mapped into
// the engine's Signal type before anything else touches them.
type SignalRow struct {
	ID           uint       `gorm:"primaryKey;column:id" json:"id"`
	SignalUID    string     `gorm:"column:signal_uid" json:"signal_uid"`
	Symbol       string     `gorm:"column:symbol" json:"symbol"`
	Direction    string     `gorm:"column:direction" json:"direction"`
	EdgeEstimate float64    `gorm:"column:edge_estimate" json:"edge_estimate"`
	Confidence   float64    `gorm:"column:confidence" json:"confidence"`
	HorizonDays  int        `gorm:"column:horizon_days" json:"horizon_days"`
	Sector       string     `gorm:"column:sector" json:"sector"`
	Strategy     string     `gorm:"column:strategy" json:"strategy"`
	EventID      string     `gorm:"column:event_id" json:"event_id"`
	CatalystTime *time.Time `gorm:"column:catalyst_time" json:"catalyst_time,omitempty"`
	PlaybookName string     `gorm:"column:playbook_name" json:"playbook_name"`
	ReceivedAt   *time.Time `gorm:"column:received_at" json:"received_at,omitempty"`
}

// TableName ensures GORM uses the exact table name from the feed database.
func (SignalRow) TableName() string {
	return "signal_feed"
}
