package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawItem is the append-only audit copy of an ingested item. It is written
// once at ingestion and never read back into the dedup set.
type RawItem struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	ItemID     string         `gorm:"type:varchar(64);not null;index"`
	Account    string         `gorm:"type:varchar(100);not null;index"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
	CapturedAt time.Time      `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (RawItem) TableName() string {
	return "raw_items"
}
