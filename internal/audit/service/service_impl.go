package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/audit/masking"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, event domain.Event) error {
	if strings.TrimSpace(event.Type) == "" {
		return domain.ErrInvalidEvent
	}
	severity := event.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}

	record := domain.Record{
		ID:        s.genID.Generate(),
		EventType: event.Type,
		UserID:    event.UserID,
		Severity:  severity,
		Status:    event.Status,
		Details:   masking.MaskDetails(event.Details),
		CreatedAt: s.clock.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		// Audit writes must never fail the operation they describe.
		s.log.Error("audit record write failed",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	query := s.db.WithContext(ctx).Model(&domain.Record{})
	if req.EventType != "" {
		query = query.Where("event_type = ?", req.EventType)
	}
	if req.UserID != "" {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Severity != "" {
		query = query.Where("severity = ?", req.Severity)
	}
	if req.StartAt != nil {
		query = query.Where("created_at >= ?", req.StartAt)
	}
	if req.EndAt != nil {
		query = query.Where("created_at <= ?", req.EndAt)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		query = query.Where("id < ?", id)
	}

	var records []*domain.Record
	if err := query.Order("id DESC").Limit(pageSize + 1).Find(&records).Error; err != nil {
		return domain.ListResponse{}, err
	}

	records, pageInfo := pagination.BuildCursorPageInfo(records, pageSize, func(r *domain.Record) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(int64(r.ID), 10)})
		return token
	})

	return domain.ListResponse{
		PageInfo: *pageInfo,
		Records:  records,
	}, nil
}
