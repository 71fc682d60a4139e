package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumahq/lumina/internal/admission/domain"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/config"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/observability"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	storeAttempts = 3
	storeBackoff  = 20 * time.Millisecond
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Limiter  domain.RateLimiter
	Policy   domain.PolicyEvaluator
	Ledger   domain.CreditLedger
	AuditSvc auditdomain.Service
	Metrics  *observability.Metrics
}

// Service is the admission gate. The stage order is deliberate: the rate
// limiter is the cheapest check and shields the rest, the policy engine is
// pure CPU, and the credit charge comes last because it is the only stage
// that needs compensation once spent.
type Service struct {
	log      *zap.Logger
	cfg      config.Config
	genID    *snowflake.Node
	limiter  domain.RateLimiter
	policy   domain.PolicyEvaluator
	ledger   domain.CreditLedger
	auditSvc auditdomain.Service
	metrics  *observability.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("admission"),
		cfg:      p.Cfg,
		genID:    p.GenID,
		limiter:  p.Limiter,
		policy:   p.Policy,
		ledger:   p.Ledger,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Admit(ctx context.Context, req domain.Request) (domain.Result, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.OperationClass = strings.TrimSpace(req.OperationClass)
	if req.UserID == "" || req.OperationClass == "" {
		return domain.Result{}, domain.ErrInvalidRequest
	}
	class, ok := s.cfg.Class(req.OperationClass)
	if !ok {
		return domain.Result{}, domain.ErrInvalidRequest
	}

	result := domain.Result{
		AdmissionID: s.genID.Generate().String(),
		Allowed:     true,
	}

	// stage 1: rate limit. The limiter itself skips privileged users.
	rl, err := withRetry(ctx, s.log, func() (ratelimitdomain.Result, error) {
		return s.limiter.Allow(ctx, req.UserID, req.OperationClass, req.Privileged)
	})
	if err != nil {
		// the decision was never made, so nothing is admitted
		s.metrics.IncAdmission(req.OperationClass, "error")
		return domain.Result{}, fmt.Errorf("rate limit check: %w", domain.ErrStoreFailure)
	}
	result.RateLimit = rl

	if !result.RateLimit.Allowed {
		result.Allowed = false
		result.Reason = domain.ReasonRateLimited
		s.finish(ctx, req, result)
		return result, nil
	}

	// stage 2: policy, applied to everyone including privileged users
	decision := s.policy.Evaluate(req.Instruction, req.FacesDetected, req.PreserveIdentity)
	result.RiskLevel = decision.RiskLevel
	result.PolicyReasons = decision.Reasons
	if !decision.Allowed {
		// the rate-limit slot consumed above stays consumed
		result.Allowed = false
		result.Reason = domain.ReasonPolicyViolation
		s.finish(ctx, req, result)
		return result, nil
	}

	// stage 3: charge. Privileged users ride free. The charge is keyed by
	// the admission id so Compensate can resolve it later.
	if !req.Privileged && class.Cost > 0 {
		charged, err := withRetry(ctx, s.log, func() (bool, error) {
			return s.ledger.Charge(ctx, req.UserID, class.Cost, chargeReference(result.AdmissionID), map[string]any{
				"admission_id":    result.AdmissionID,
				"operation_class": req.OperationClass,
			})
		})
		if err != nil {
			s.metrics.IncAdmission(req.OperationClass, "error")
			return domain.Result{}, fmt.Errorf("credit charge: %w", domain.ErrStoreFailure)
		}
		if !charged {
			result.Allowed = false
			result.Reason = domain.ReasonInsufficientCredits
			s.finish(ctx, req, result)
			return result, nil
		}
		result.CreditsCharged = class.Cost
	}

	s.finish(ctx, req, result)
	return result, nil
}

func (s *Service) Compensate(ctx context.Context, admissionID, userID string) error {
	admissionID = strings.TrimSpace(admissionID)
	userID = strings.TrimSpace(userID)
	if admissionID == "" || userID == "" {
		return domain.ErrInvalidRequest
	}

	// The refund is anchored to the recorded charge, never to caller input:
	// no matching charge under this user, no compensation.
	charge, err := s.ledger.FindByReference(ctx, chargeReference(admissionID))
	if errors.Is(err, ledgerdomain.ErrEntryNotFound) {
		return domain.ErrAdmissionNotFound
	}
	if err != nil {
		return err
	}
	if charge.UserID != userID || charge.Kind != ledgerdomain.KindCharge || charge.Amount >= 0 {
		return domain.ErrAdmissionNotFound
	}
	amount := -charge.Amount

	err = s.ledger.Refund(ctx, userID, amount, refundReference(admissionID), map[string]any{
		"admission_id": admissionID,
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		// already compensated
		return nil
	}
	if err != nil {
		s.log.Error("refund failed",
			zap.String("admission_id", admissionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Type:     "billing.refund_failed",
			UserID:   userID,
			Severity: auditdomain.SeverityCritical,
			Status:   "failed",
			Details: map[string]any{
				"admission_id": admissionID,
				"credits":      amount,
				"action":       "manual reconciliation required",
			},
		})
		return err
	}

	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Type:     "billing.credits_refunded",
		UserID:   userID,
		Severity: auditdomain.SeverityInfo,
		Status:   "completed",
		Details: map[string]any{
			"admission_id": admissionID,
			"credits":      amount,
		},
	})
	return nil
}

// chargeReference keys the charge entry of one admission; refundReference
// keys its compensating credit. Both stay stable so retries are idempotent.
func chargeReference(admissionID string) string { return "admission:" + admissionID }

func refundReference(admissionID string) string { return "refund:" + admissionID }

// finish writes the single summarizing audit record and the outcome metric
// for one admission, allowed or denied.
func (s *Service) finish(ctx context.Context, req domain.Request, result domain.Result) {
	outcome := "allowed"
	severity := auditdomain.SeverityInfo
	status := "granted"
	if !result.Allowed {
		outcome = result.Reason
		status = "denied"
		if result.Reason == domain.ReasonPolicyViolation {
			severity = auditdomain.SeverityWarning
		}
	}
	s.metrics.IncAdmission(req.OperationClass, outcome)

	details := map[string]any{
		"admission_id":    result.AdmissionID,
		"operation_class": req.OperationClass,
		"credits_charged": result.CreditsCharged,
		"faces_detected":  req.FacesDetected,
		"privileged":      req.Privileged,
	}
	if result.Reason != "" {
		details["reason"] = result.Reason
	}
	if result.RiskLevel != "" {
		details["risk_level"] = string(result.RiskLevel)
	}
	if len(result.PolicyReasons) > 0 {
		details["policy_reasons"] = result.PolicyReasons
	}

	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Type:     "admission.decision",
		UserID:   req.UserID,
		Severity: severity,
		Status:   status,
		Details:  details,
	})
}

// withRetry retries transient store failures a few times before giving up.
// Giving up is a closed gate, never an open one.
func withRetry[T any](ctx context.Context, log *zap.Logger, fn func() (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	for attempt := 0; attempt < storeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(storeBackoff << (attempt - 1)):
			}
		}
		var err error
		out, err = fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		log.Warn("store operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	var zero T
	return zero, lastErr
}
