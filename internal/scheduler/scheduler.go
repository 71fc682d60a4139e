package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/lumahq/lumina/internal/payment/domain"
	"github.com/lumahq/lumina/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKey = "lumina:reconcile:lock"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log        *zap.Logger
	Reconciler domain.Reconciler
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

// Scheduler drives the reconciliation sweep on a fixed interval. When redis
// is configured the sweep takes a lock first, so only one replica runs it;
// without redis it runs unguarded, which is fine for a single node.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	reconciler domain.Reconciler
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        cfg,
		reconciler: p.Reconciler,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("sweep already running elsewhere")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	_, err := s.reconciler.Reconcile(ctx, 0)
	return err
}
