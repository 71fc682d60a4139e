package domain

import (
	"context"
	"errors"
	"time"

	"github.com/lumahq/lumina/pkg/db/pagination"
)

type ListEntriesRequest struct {
	pagination.Pagination
	UserID string
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []*Entry `json:"entries"`
}

type Service interface {
	// Charge atomically debits the account if, and only if, the balance
	// covers the amount. Returns false with no side effects otherwise.
	// A non-empty external reference keys the charge entry so a later
	// compensation can resolve it; duplicates return ErrDuplicateReference.
	Charge(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) (bool, error)

	// Allocate credits the account exactly once per external reference.
	// A reference already completed returns ErrDuplicateReference; a pending
	// entry with the reference is transitioned to completed in the same
	// transaction as the balance credit.
	Allocate(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) error

	// Refund is the compensating credit for a committed charge whose
	// downstream operation failed. Idempotent per reference.
	Refund(ctx context.Context, userID string, amount int64, reference string, metadata map[string]any) error

	// RecordPending writes a pending allocation entry at checkout time so the
	// reconciliation sweep has something to verify if the webhook never lands.
	RecordPending(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) error

	// MarkFailed transitions a pending entry to failed after the gateway
	// confirmed the payment did not go through.
	MarkFailed(ctx context.Context, externalReference string) error

	// FindByReference returns the entry recorded under an external
	// reference, whatever its status.
	FindByReference(ctx context.Context, externalReference string) (*Entry, error)

	Balance(ctx context.Context, userID string) (int64, error)
	Entries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)

	// PendingAllocations lists pending allocation entries created in
	// [notBefore, olderThan], oldest first.
	PendingAllocations(ctx context.Context, olderThan, notBefore time.Time, limit int) ([]*Entry, error)
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrDuplicateReference = errors.New("duplicate_reference")
	ErrReferenceConflict  = errors.New("reference_conflict")
	ErrReferenceFailed    = errors.New("reference_already_failed")
	ErrEntryNotFound      = errors.New("entry_not_found")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)
