package models

import (
	"time"
)

// TradeRecord is a persisted entry or exit event for one position
type TradeRecord struct {
	ID     uint      `gorm:"primaryKey"`
	Time   time.Time `gorm:"index;not null"`
	Pair   string    `gorm:"index;not null"`
	Type   string    `gorm:"not null"`
	Side   string    `gorm:"not null"`

	EntryPrice float64 `gorm:"type:decimal(20,8)"`
	ExitPrice  float64 `gorm:"type:decimal(20,8)"`
	Amount     float64 `gorm:"type:decimal(20,8)"`
	Leverage   int

	PnL        float64 `gorm:"column:pnl;type:decimal(20,8)"`
	PnLPercent float64 `gorm:"column:pnl_percent;type:decimal(20,8)"`

	EntryScore    float64 `gorm:"type:decimal(20,8)"`
	Reason        string
	DurationHours float64 `gorm:"type:decimal(20,8)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

const (
	TradeTypeEntry = "entry"
	TradeTypeExit  = "exit"
)

// TableName sets the table name for TradeRecord
func (TradeRecord) TableName() string {
	return "trades"
}
