// Package domain defines the persistence models for calls, their recordings,
// and the silence intervals derived from them. These types are mapped with
// GORM and form the core data layer of the call recording backend.
package domain

import (
	"time"
)

// CallStatus is the lifecycle state of a Call.
type CallStatus string

const (
	// StatusCreated: the call is registered and has no recording yet.
	StatusCreated CallStatus = "created"
	// StatusProcessing: a recording was accepted and analysis is pending or running.
	StatusProcessing CallStatus = "processing"
	// StatusReady: analysis completed and metadata is available.
	StatusReady CallStatus = "ready"
	// StatusFailed: analysis exhausted its retry budget. A FailedTask row
	// describes the last error.
	StatusFailed CallStatus = "failed"
)

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a call may move from s to next.
//
// Allowed:
//   - created    -> processing (recording accepted)
//   - processing -> processing (pipeline start, redelivery)
//   - processing -> ready      (analysis persisted)
//   - processing -> failed     (retry budget exhausted)
//   - failed     -> processing (operator redrive)
//   - ready      -> ready      (redelivered task re-ran analysis)
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusReady || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	case StatusReady:
		return next == StatusReady
	}
	return false
}

// Call represents one phone call.
//
// Fields:
//   - ID: UUID primary key (char(36)), generated at creation.
//   - Caller / Receiver: phone numbers; indexed for lookups by number.
//   - StartedAt: when the call started (client supplied).
//   - Status: lifecycle state, see CallStatus.
type Call struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	Caller    string     `json:"caller"     gorm:"type:varchar(32);not null;index:idx_calls_caller"`
	Receiver  string     `json:"receiver"   gorm:"type:varchar(32);not null;index:idx_calls_receiver"`
	StartedAt time.Time  `json:"started_at" gorm:"not null"`
	Status    CallStatus `json:"status"     gorm:"type:varchar(16);not null;default:'created';index:idx_calls_status"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_calls_created"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Call.
func (Call) TableName() string { return "calls" }

// Record is the uploaded audio asset of a call and its derived metadata.
// At most one Record exists per Call (unique index on call_id).
//
// ObjectPath is written once at upload time. Duration and Transcription stay
// zero until the pipeline persists analysis results. PresignedURL and
// ExpiresAt cache the last issued read URL.
type Record struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	CallID        string    `json:"call_id"        gorm:"type:char(36);not null;uniqueIndex:ux_records_call"`
	Filename      string    `json:"filename"       gorm:"type:varchar(255);not null"`
	ObjectPath    string    `json:"object_path"    gorm:"type:varchar(1024);not null"`
	Duration      float64   `json:"duration"       gorm:"not null;default:0"`
	Transcription string    `json:"transcription"  gorm:"type:text;not null;default:''"`
	PresignedURL  string    `json:"presigned_url"  gorm:"type:text;not null;default:''"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Call is declared for the foreign key only and is never loaded.
	Call Call `json:"-" gorm:"foreignKey:CallID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Record.
func (Record) TableName() string { return "records" }

// Analyzed reports whether the pipeline has persisted results for r.
func (r Record) Analyzed() bool { return r.Duration > 0 }

// SilentRange is one detected silence interval within a Record's audio,
// in seconds from the start. 0 <= Start < End <= record duration.
type SilentRange struct {
	ID       uint    `json:"-"         gorm:"primaryKey;autoIncrement"`
	RecordID string  `json:"record_id" gorm:"type:char(36);not null;index:idx_ranges_record"`
	Start    float64 `json:"start"     gorm:"not null"`
	End      float64 `json:"end"       gorm:"not null"`

	// Record is declared for the foreign key only and is never loaded.
	Record Record `json:"-" gorm:"foreignKey:RecordID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SilentRange.
func (SilentRange) TableName() string { return "silent_ranges" }
