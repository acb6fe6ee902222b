package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderPurposeEntry      = "entry"
	OrderPurposeStopLoss   = "stop_loss"
	OrderPurposeTakeProfit = "take_profit"
)

// Order is the audit row for every accepted entry or close. Rejected
// placements never produce a row; their reason lands on the record instead.
type Order struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	PositionID string `gorm:"type:varchar(40);index"`
	RecordID   string `gorm:"type:varchar(64);index"`

	Instrument string `gorm:"type:varchar(30);not null;index"`
	Side       string `gorm:"type:varchar(8);not null"`
	Purpose    string `gorm:"type:varchar(20);not null"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	ExchangeOrderID string `gorm:"type:varchar(64)"`
	DryRun          bool   `gorm:"not null;default:false"`
	Reason          string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Order) TableName() string {
	return "orders"
}
