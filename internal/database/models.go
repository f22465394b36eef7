package database

import "time"

// AuditLog is one session event of a status poll. Tunnel states are never
// stored; only the connection outcome of each cycle is.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleID    string    `gorm:"index;size:36" json:"cycle_id"`
	EventType  string    `gorm:"index;not null;size:32" json:"event_type"`
	Host       string    `gorm:"not null" json:"host"`
	Username   string    `json:"username"`
	Details    string    `gorm:"type:text" json:"details"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `gorm:"index;autoCreateTime" json:"created_at"`
}
