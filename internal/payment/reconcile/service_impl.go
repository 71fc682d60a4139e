package reconcile

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/config"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/observability"
	"github.com/lumahq/lumina/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	Gateway   domain.Gateway
	AuditSvc  auditdomain.Service
	Metrics   *observability.Metrics
}

// Service is the safety net for webhook deliveries that never arrived: it
// re-queries the gateway for allocations still pending past a threshold and
// settles them either way. Credits go through the same idempotent Allocate
// as the webhook path, so running a sweep concurrently with a late webhook
// is harmless.
type Service struct {
	log       *zap.Logger
	cfg       config.Config
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
	gateway   domain.Gateway
	auditSvc  auditdomain.Service
	metrics   *observability.Metrics
}

func New(p Params) domain.Reconciler {
	return &Service{
		log:       p.Log.Named("payment.reconcile"),
		cfg:       p.Cfg,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		gateway:   p.Gateway,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, lookback time.Duration) (domain.Outcome, error) {
	if lookback <= 0 {
		lookback = s.cfg.SweepLookback
	}

	now := s.clock.Now()
	olderThan := now.Add(-s.cfg.SweepPendingAge)
	notBefore := now.Add(-lookback)

	entries, err := s.ledgerSvc.PendingAllocations(ctx, olderThan, notBefore, s.cfg.SweepBatchSize)
	if err != nil {
		s.metrics.IncSweep("error")
		return domain.Outcome{}, err
	}

	outcome := domain.Outcome{Scanned: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.ExternalReference == nil {
			continue
		}
		reference := *entry.ExternalReference

		tx, err := s.gateway.VerifyTransaction(ctx, reference)
		if err != nil {
			if errors.Is(err, domain.ErrTransactionNotFound) {
				s.settleFailed(ctx, entry, reference, "not_found")
				outcome.Failed++
				continue
			}
			// indeterminate: leave pending for the next sweep
			s.log.Warn("transaction verify failed",
				zap.String("reference", reference),
				zap.Error(err),
			)
			s.metrics.IncSweepEntry("indeterminate")
			continue
		}

		switch tx.Status {
		case domain.TransactionSuccess:
			if s.settleCredited(ctx, entry, reference) {
				outcome.Credited++
			}
		case domain.TransactionFailed, domain.TransactionAbandoned:
			s.settleFailed(ctx, entry, reference, string(tx.Status))
			outcome.Failed++
		default:
			s.metrics.IncSweepEntry("still_pending")
		}
	}

	s.metrics.IncSweep("ok")
	s.log.Info("reconciliation sweep finished",
		zap.Int("scanned", outcome.Scanned),
		zap.Int("credited", outcome.Credited),
		zap.Int("failed", outcome.Failed),
	)
	return outcome, nil
}

func (s *Service) settleCredited(ctx context.Context, entry *ledgerdomain.Entry, reference string) bool {
	err := s.ledgerSvc.Allocate(ctx, entry.UserID, entry.Amount, reference, map[string]any{
		"source": "reconcile",
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		// the webhook beat us to it
		s.metrics.IncSweepEntry("already_credited")
		return false
	}
	if err != nil {
		s.log.Error("sweep allocation failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		s.metrics.IncSweepEntry("error")
		return false
	}

	s.metrics.IncSweepEntry("credited")
	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Type:     "billing.credits_allocated",
		UserID:   entry.UserID,
		Severity: auditdomain.SeverityInfo,
		Status:   "completed",
		Details: map[string]any{
			"credits":   entry.Amount,
			"reference": reference,
			"source":    "reconcile",
		},
	})
	return true
}

func (s *Service) settleFailed(ctx context.Context, entry *ledgerdomain.Entry, reference, gatewayStatus string) {
	if err := s.ledgerSvc.MarkFailed(ctx, reference); err != nil {
		s.log.Error("sweep mark-failed failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		s.metrics.IncSweepEntry("error")
		return
	}

	s.metrics.IncSweepEntry("failed")
	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Type:     "billing.allocation_failed",
		UserID:   entry.UserID,
		Severity: auditdomain.SeverityWarning,
		Status:   "failed",
		Details: map[string]any{
			"reference":      reference,
			"gateway_status": gatewayStatus,
		},
	})
}
