package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record status values. Pending, Processing, TimedOut and Failed-with-retries
// feed back into the analysis queue; Done and exhausted Failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusTimedOut   = "timed_out"
	StatusFailed     = "failed"
)

// ProcessingRecord tracks one ingested item from capture to terminal state.
// The id is the item's stable external identifier and doubles as the dedup key.
type ProcessingRecord struct {
	ID            string    `gorm:"type:varchar(64);primaryKey"`
	SourceAccount string    `gorm:"type:varchar(100);not null;index"`
	CapturedAt    time.Time `gorm:"type:timestamptz;not null"`
	PreviewText   string    `gorm:"type:text"`

	Status     string `gorm:"type:varchar(20);not null;default:'pending';index"`
	RetryCount int    `gorm:"not null;default:0"`

	AnalysisResult datatypes.JSON `gorm:"type:jsonb"`
	AnalysisError  string         `gorm:"type:text"`
	ExecutionInfo  datatypes.JSON `gorm:"type:jsonb"`

	LastUpdatedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt     time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ProcessingRecord) TableName() string {
	return "processing_records"
}

// Terminal reports whether no further status transition is defined.
func (r *ProcessingRecord) Terminal() bool {
	return r.Status == StatusDone || r.Status == StatusFailed
}
