package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (scope, key). It lets clients retry POST /calls safely: the replay
// returns the originally created resource without creating another one.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_scope_key,priority:1"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_scope_key,priority:2"`
	ResourceID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
