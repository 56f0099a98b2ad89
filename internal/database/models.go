package database

import "time"

// Setting is a persisted key/value override. Secrets are stored encrypted
// by the crypto package.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// AuditLog is one recorded connection or file event.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventType  string    `gorm:"not null;index" json:"event_type"`
	Operation  string    `json:"operation,omitempty"`
	Path       string    `json:"path,omitempty"`
	Target     string    `json:"target,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	RequestID  string    `gorm:"index" json:"request_id,omitempty"`
	Success    bool      `json:"success"`
	Details    string    `json:"details,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
