package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/config"
	"github.com/lumahq/lumina/internal/ratelimit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   config.Config
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ratelimit"),
		clock: p.Clock,
		cfg:   p.Cfg,
	}
}

// Allow runs up to three guarded statements, each individually atomic, so two
// concurrent requests can never both pass the window boundary:
//
//  1. insert a fresh window (count=1) if none exists;
//  2. increment the live window while count < limit;
//  3. restart an expired window at count=1 (lazy reset).
//
// When the reset loses to a concurrent handler the increment is retried
// once against the window that handler just restarted. If nothing applied,
// the window is full.
func (s *Service) Allow(ctx context.Context, userID, operationClass string, privileged bool) (domain.Result, error) {
	class, window, err := s.classConfig(operationClass)
	if err != nil {
		return domain.Result{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Result{}, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	if privileged {
		return domain.Result{
			Allowed: true,
			Limit:   class.Limit,
			ResetAt: now.Add(window),
		}, nil
	}

	cutoff := now.Add(-window)

	fresh := domain.Window{
		UserID:         userID,
		OperationClass: operationClass,
		Count:          1,
		WindowStart:    now,
		Limit:          class.Limit,
		WindowMs:       window.Milliseconds(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh)
	if res.Error != nil {
		return domain.Result{}, res.Error
	}
	if res.RowsAffected == 1 {
		return domain.Result{Allowed: true, Count: 1, Limit: class.Limit, ResetAt: now.Add(window)}, nil
	}

	incremented, err := s.increment(ctx, userID, operationClass, cutoff, class.Limit)
	if err != nil {
		return domain.Result{}, err
	}
	if incremented {
		return s.view(ctx, userID, operationClass, class.Limit, window, true)
	}

	res = s.db.WithContext(ctx).Model(&domain.Window{}).
		Where("user_id = ? AND operation_class = ? AND window_start <= ?",
			userID, operationClass, cutoff).
		Updates(map[string]any{
			"count":        1,
			"window_start": now,
			"limit_count":  class.Limit,
			"window_ms":    window.Milliseconds(),
		})
	if res.Error != nil {
		return domain.Result{}, res.Error
	}
	if res.RowsAffected == 1 {
		return domain.Result{Allowed: true, Count: 1, Limit: class.Limit, ResetAt: now.Add(window)}, nil
	}

	// the reset lost to a concurrent handler; its fresh window may still
	// have room, so take one more shot at the increment before denying
	incremented, err = s.increment(ctx, userID, operationClass, cutoff, class.Limit)
	if err != nil {
		return domain.Result{}, err
	}
	return s.view(ctx, userID, operationClass, class.Limit, window, incremented)
}

// increment is the guarded count bump against a live, non-full window.
func (s *Service) increment(ctx context.Context, userID, operationClass string, cutoff time.Time, limit int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Window{}).
		Where("user_id = ? AND operation_class = ? AND window_start > ? AND count < ?",
			userID, operationClass, cutoff, limit).
		Update("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) Status(ctx context.Context, userID, operationClass string) (domain.Result, error) {
	class, window, err := s.classConfig(operationClass)
	if err != nil {
		return domain.Result{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Result{}, domain.ErrInvalidUser
	}

	now := s.clock.Now()

	var w domain.Window
	err = s.db.WithContext(ctx).
		First(&w, "user_id = ? AND operation_class = ?", userID, operationClass).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Result{Allowed: true, Count: 0, Limit: class.Limit, ResetAt: now.Add(window)}, nil
	}
	if err != nil {
		return domain.Result{}, err
	}

	resetAt := w.WindowStart.Add(window)
	if !resetAt.After(now) {
		// expired window reads as empty until the next Allow resets it
		return domain.Result{Allowed: true, Count: 0, Limit: class.Limit, ResetAt: now.Add(window)}, nil
	}
	return domain.Result{
		Allowed: w.Count < class.Limit,
		Count:   w.Count,
		Limit:   class.Limit,
		ResetAt: resetAt,
	}, nil
}

func (s *Service) Reset(ctx context.Context, userID, operationClass string) error {
	class, window, err := s.classConfig(operationClass)
	if err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUser
	}

	now := s.clock.Now()
	w := domain.Window{
		UserID:         userID,
		OperationClass: operationClass,
		Count:          0,
		WindowStart:    now,
		Limit:          class.Limit,
		WindowMs:       window.Milliseconds(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&w).Error
}

// view reads the row back for count/resetAt reporting. Informational only;
// the admission decision was already made by the guarded statement.
func (s *Service) view(ctx context.Context, userID, operationClass string, limit int, window time.Duration, allowed bool) (domain.Result, error) {
	var w domain.Window
	if err := s.db.WithContext(ctx).
		First(&w, "user_id = ? AND operation_class = ?", userID, operationClass).Error; err != nil {
		return domain.Result{}, err
	}
	return domain.Result{
		Allowed: allowed,
		Count:   w.Count,
		Limit:   limit,
		ResetAt: w.WindowStart.Add(window),
	}, nil
}

func (s *Service) classConfig(operationClass string) (config.OperationClass, time.Duration, error) {
	class, ok := s.cfg.Class(operationClass)
	if !ok {
		return config.OperationClass{}, 0, domain.ErrUnknownOperationClass
	}
	return class, class.Window, nil
}
