package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Record is an append-only, PII-scrubbed trace of an admission decision or
// ledger mutation. Rows are never updated or deleted by this service.
type Record struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType string            `gorm:"type:text;not null;index" json:"event_type"`
	UserID    string            `gorm:"size:64;not null;index" json:"user_id"`
	Severity  Severity          `gorm:"type:text;not null" json:"severity"`
	Status    string            `gorm:"type:text;not null" json:"status"`
	Details   datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

func (Record) TableName() string { return "audit_records" }
