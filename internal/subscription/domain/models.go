package domain

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Subscription mirrors the gateway's subscription object for the pieces we
// need locally: entitlement checks and cancellation bookkeeping.
type Subscription struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	Code       string    `gorm:"column:code;uniqueIndex;size:64" json:"code"`
	UserID     string    `gorm:"column:user_id;index;size:64" json:"user_id"`
	PlanCode   string    `gorm:"column:plan_code;size:64" json:"plan_code"`
	Status     Status    `gorm:"column:status;size:16" json:"status"`
	EmailToken string    `gorm:"column:email_token;size:128" json:"-"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

type ActivateRequest struct {
	Code       string
	UserID     string
	PlanCode   string
	EmailToken string
}

type Service interface {
	// Activate upserts by subscription code, so redelivered creation
	// events are harmless.
	Activate(ctx context.Context, req ActivateRequest) error
	Disable(ctx context.Context, code string) error
	Get(ctx context.Context, code string) (*Subscription, error)
}

var (
	ErrInvalidCode          = errors.New("invalid_subscription_code")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
