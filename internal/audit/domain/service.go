package domain

import (
	"context"
	"errors"
	"time"

	"github.com/lumahq/lumina/pkg/db/pagination"
)

type Event struct {
	Type     string
	UserID   string
	Severity Severity
	Status   string
	Details  map[string]any
}

type ListRequest struct {
	pagination.Pagination
	EventType string
	UserID    string
	Severity  string
	StartAt   *time.Time
	EndAt     *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Records []*Record `json:"records"`
}

type Service interface {
	// Record appends one audit record. Details are masked before persisting.
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
