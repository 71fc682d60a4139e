package domain

import (
	"context"
	"errors"
	"time"
)

// Window is one fixed rate window per (user, operation class). Count is only
// ever moved by guarded single-statement updates; an expired window is reset
// lazily on next access, never by a background job.
type Window struct {
	UserID         string    `gorm:"primaryKey;size:64" json:"user_id"`
	OperationClass string    `gorm:"primaryKey;size:32" json:"operation_class"`
	Count          int       `gorm:"not null" json:"count"`
	WindowStart    time.Time `gorm:"not null" json:"window_start"`
	Limit          int       `gorm:"column:limit_count;not null" json:"limit"`
	WindowMs       int64     `gorm:"not null" json:"window_ms"`
}

func (Window) TableName() string { return "rate_windows" }

// Result reports one admission-rate decision.
type Result struct {
	Allowed bool      `json:"allowed"`
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

type Service interface {
	// Allow decides whether one more operation of the class may start now.
	// Privileged identities are always allowed and never mutate state.
	// Any store error means the decision was not made; callers must treat
	// that as a denial, not an allowance.
	Allow(ctx context.Context, userID, operationClass string, privileged bool) (Result, error)

	// Status is the read-only view for the rate-status endpoint.
	Status(ctx context.Context, userID, operationClass string) (Result, error)

	// Reset administratively overwrites the window to a zero count.
	Reset(ctx context.Context, userID, operationClass string) error
}

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrUnknownOperationClass = errors.New("unknown_operation_class")
)
