package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account carries a user's spendable credit balance. The balance is only
// ever mutated through guarded single-statement updates, so it can never
// observe a lost update or go negative.
type Account struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "ledger_accounts" }

type EntryKind string

const (
	KindCharge     EntryKind = "charge"
	KindAllocation EntryKind = "allocation"
	KindRefund     EntryKind = "refund"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// Entry is the immutable transaction log. Amounts are signed: charges are
// negative, allocations and refunds positive, so an account balance always
// equals the sum of its completed entries.
//
// ExternalReference is the idempotency key: the unique index guarantees at
// most one entry per reference, including under concurrent duplicate webhook
// deliveries. Admission charges are keyed by their admission id so a later
// compensation can resolve the exact charge it reverses.
type Entry struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID            string            `gorm:"size:64;not null;index" json:"user_id"`
	Kind              EntryKind         `gorm:"type:text;not null" json:"kind"`
	Amount            int64             `gorm:"not null" json:"amount"`
	ExternalReference *string           `gorm:"uniqueIndex;size:128" json:"external_reference,omitempty"`
	Status            EntryStatus       `gorm:"type:text;not null;index" json:"status"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (Entry) TableName() string { return "ledger_entries" }
