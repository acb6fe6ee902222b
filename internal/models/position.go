package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PositionOpen   = "open"
	PositionClosed = "closed"
)

// Position is the persisted twin of an open position owned by its monitor
// goroutine. It is saved after every partial close so monitors can be rebuilt
// across restarts.
type Position struct {
	PositionID string `gorm:"type:varchar(40);primaryKey"`
	Instrument string `gorm:"type:varchar(30);not null;index"`
	Side       string `gorm:"type:varchar(8);not null"`

	EntryPrice        decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	OriginalQuantity  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	RemainingQuantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	RealizedPnL       decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	TiersState     datatypes.JSON `gorm:"type:jsonb"`
	StrategyConfig datatypes.JSON `gorm:"type:jsonb"`

	Status         string     `gorm:"type:varchar(20);not null;default:'open';index"`
	OriginRecordID string     `gorm:"type:varchar(64);index"`
	OpenedAt       time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt       *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}
