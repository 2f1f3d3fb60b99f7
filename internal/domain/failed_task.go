package domain

import (
	"time"

	"gorm.io/datatypes"
)

// FailedTask is a dead-letter entry written when a processing task exhausts
// its retry budget. It is removed when an operator redrives the record.
type FailedTask struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	RecordID  string         `json:"record_id"  gorm:"type:char(36);not null;index:idx_failed_record"`
	CallID    string         `json:"call_id"    gorm:"type:char(36);not null;index"`
	Attempts  int            `json:"attempts"   gorm:"not null"`
	Kind      string         `json:"kind"       gorm:"type:varchar(32);not null"`
	LastError string         `json:"last_error" gorm:"type:text;not null"`
	Payload   datatypes.JSON `json:"payload"    gorm:"type:json"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for FailedTask.
func (FailedTask) TableName() string { return "failed_tasks" }
