package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/config"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/observability"
	"github.com/lumahq/lumina/internal/payment/domain"
	subscriptiondomain "github.com/lumahq/lumina/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	LedgerSvc ledgerdomain.Service
	SubSvc    subscriptiondomain.Service
	AuditSvc  auditdomain.Service
	Metrics   *observability.Metrics
}

// Service turns signed gateway notifications into ledger credits and
// subscription updates. Delivery is at-least-once on paper and worse in
// practice; every path through Ingest must therefore be safe to repeat.
type Service struct {
	log       *zap.Logger
	secret    []byte
	ledgerSvc ledgerdomain.Service
	subSvc    subscriptiondomain.Service
	auditSvc  auditdomain.Service
	metrics   *observability.Metrics
}

func New(p Params) domain.Webhook {
	return &Service{
		log:       p.Log.Named("payment.webhook"),
		secret:    []byte(p.Cfg.GatewaySecret),
		ledgerSvc: p.LedgerSvc,
		subSvc:    p.SubSvc,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) error {
	if !s.verifySignature(payload, signature) {
		s.metrics.IncWebhookEvent("unknown", "unauthorized")
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Type:     "security.unauthorized_webhook",
			Severity: auditdomain.SeverityWarning,
			Status:   "rejected",
			Details: map[string]any{
				"signature": signature,
			},
		})
		return domain.ErrInvalidSignature
	}

	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ErrInvalidPayload
	}

	switch event.Event {
	case domain.EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event.Data)
	case domain.EventSubscriptionCreated:
		return s.handleSubscriptionCreated(ctx, event.Data)
	case domain.EventSubscriptionDisabled:
		return s.handleSubscriptionDisabled(ctx, event.Data)
	default:
		// acknowledged so the gateway stops redelivering
		s.log.Debug("ignoring webhook event", zap.String("event", event.Event))
		s.metrics.IncWebhookEvent(event.Event, "ignored")
		return nil
	}
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, data domain.EventData) error {
	userID := strings.TrimSpace(data.Metadata.UserID)
	if userID == "" || data.Metadata.Credits <= 0 || strings.TrimSpace(data.Reference) == "" {
		s.metrics.IncWebhookEvent(domain.EventPaymentSucceeded, "invalid")
		return domain.ErrInvalidPayload
	}

	err := s.ledgerSvc.Allocate(ctx, userID, data.Metadata.Credits, data.Reference, map[string]any{
		"source": "webhook",
		"amount": data.Amount,
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		// duplicate delivery: already credited, absorb silently
		s.log.Info("duplicate payment event",
			zap.String("user_id", userID),
			zap.String("reference", data.Reference),
		)
		s.metrics.IncWebhookEvent(domain.EventPaymentSucceeded, "duplicate")
		return domain.ErrEventAlreadyProcessed
	}
	if err != nil {
		s.metrics.IncWebhookEvent(domain.EventPaymentSucceeded, "error")
		return err
	}

	s.metrics.IncWebhookEvent(domain.EventPaymentSucceeded, "credited")
	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Type:     "billing.credits_allocated",
		UserID:   userID,
		Severity: auditdomain.SeverityInfo,
		Status:   "completed",
		Details: map[string]any{
			"credits":   data.Metadata.Credits,
			"reference": data.Reference,
			"source":    "webhook",
		},
	})
	return nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, data domain.EventData) error {
	if strings.TrimSpace(data.SubscriptionCode) == "" {
		return domain.ErrInvalidPayload
	}

	err := s.subSvc.Activate(ctx, subscriptiondomain.ActivateRequest{
		Code:       data.SubscriptionCode,
		UserID:     data.Metadata.UserID,
		PlanCode:   data.PlanCode,
		EmailToken: data.EmailToken,
	})
	if err != nil {
		s.metrics.IncWebhookEvent(domain.EventSubscriptionCreated, "error")
		return err
	}
	s.metrics.IncWebhookEvent(domain.EventSubscriptionCreated, "processed")
	return nil
}

func (s *Service) handleSubscriptionDisabled(ctx context.Context, data domain.EventData) error {
	if strings.TrimSpace(data.SubscriptionCode) == "" {
		return domain.ErrInvalidPayload
	}

	if err := s.subSvc.Disable(ctx, data.SubscriptionCode); err != nil {
		s.metrics.IncWebhookEvent(domain.EventSubscriptionDisabled, "error")
		return err
	}
	s.metrics.IncWebhookEvent(domain.EventSubscriptionDisabled, "processed")
	return nil
}

// verifySignature checks the hex HMAC-SHA512 of the raw payload in constant
// time. Nothing is parsed before the signature passes.
func (s *Service) verifySignature(payload []byte, signature string) bool {
	if len(s.secret) == 0 || strings.TrimSpace(signature) == "" {
		return false
	}
	mac := hmac.New(sha512.New, s.secret)
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}

// Signature computes the signature a payload should carry; used by tests and
// local tooling.
func Signature(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return fmt.Sprintf("%x", mac.Sum(nil))
}
