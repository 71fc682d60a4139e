package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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
		log:   p.Log.Named("subscription"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Activate(ctx context.Context, req domain.ActivateRequest) error {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.ErrInvalidCode
	}

	now := s.clock.Now()
	sub := domain.Subscription{
		ID:         s.genID.Generate().Int64(),
		Code:       code,
		UserID:     strings.TrimSpace(req.UserID),
		PlanCode:   req.PlanCode,
		Status:     domain.StatusActive,
		EmailToken: req.EmailToken,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":      domain.StatusActive,
				"plan_code":   sub.PlanCode,
				"email_token": sub.EmailToken,
				"updated_at":  now,
			}),
		}).
		Create(&sub).Error
	if err != nil {
		return err
	}

	s.log.Info("subscription activated",
		zap.String("code", code),
		zap.String("user_id", sub.UserID),
		zap.String("plan_code", sub.PlanCode),
	)
	return nil
}

func (s *Service) Disable(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.ErrInvalidCode
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("code = ?", code).
		Updates(map[string]any{
			"status":     domain.StatusDisabled,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// a disable for a subscription we never saw; record it so the
		// gateway and our table can be compared later
		s.log.Warn("disable for unknown subscription", zap.String("code", code))
		return domain.ErrSubscriptionNotFound
	}

	s.log.Info("subscription disabled", zap.String("code", code))
	return nil
}

func (s *Service) Get(ctx context.Context, code string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).
		Where("code = ?", strings.TrimSpace(code)).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
