package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/config"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	ledgerservice "github.com/lumahq/lumina/internal/ledger/service"
	"github.com/lumahq/lumina/internal/payment/domain"
	subscriptiondomain "github.com/lumahq/lumina/internal/subscription/domain"
	subscriptionservice "github.com/lumahq/lumina/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type auditStub struct {
	events []auditdomain.Event
}

func (a *auditStub) Record(ctx context.Context, event auditdomain.Event) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditStub) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	return auditdomain.ListResponse{}, nil
}

func setupWebhook(t *testing.T) (domain.Webhook, ledgerdomain.Service, subscriptiondomain.Service, *auditStub) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.Entry{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	subSvc := subscriptionservice.New(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	audit := &auditStub{}
	svc := New(Params{
		Log:       zap.NewNop(),
		Cfg:       config.Config{GatewaySecret: testSecret},
		LedgerSvc: ledgerSvc,
		SubSvc:    subSvc,
		AuditSvc:  audit,
		Metrics:   nil,
	})
	return svc, ledgerSvc, subSvc, audit
}

func signedPayload(t *testing.T, event domain.Event) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, Signature(testSecret, payload)
}

func paymentEvent(reference, userID string, credits int64) domain.Event {
	return domain.Event{
		Event: domain.EventPaymentSucceeded,
		Data: domain.EventData{
			Reference: reference,
			Amount:    credits * 100,
			Status:    "success",
			Metadata:  domain.EventMetadata{UserID: userID, Credits: credits},
		},
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	svc, ledgerSvc, _, audit := setupWebhook(t)
	ctx := context.Background()

	payload, _ := signedPayload(t, paymentEvent("pay-1", "u1", 10))

	err := svc.Ingest(ctx, payload, "deadbeef")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	balance, err := ledgerSvc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, balance)

	require.Len(t, audit.events, 1)
	require.Equal(t, "security.unauthorized_webhook", audit.events[0].Type)
}

func TestIngestRejectsMissingSignature(t *testing.T) {
	svc, _, _, _ := setupWebhook(t)

	payload, _ := signedPayload(t, paymentEvent("pay-1", "u1", 10))
	err := svc.Ingest(context.Background(), payload, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestIngestCreditsPayment(t *testing.T) {
	svc, ledgerSvc, _, audit := setupWebhook(t)
	ctx := context.Background()

	payload, sig := signedPayload(t, paymentEvent("pay-1", "u1", 10))
	require.NoError(t, svc.Ingest(ctx, payload, sig))

	balance, err := ledgerSvc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)

	require.Len(t, audit.events, 1)
	require.Equal(t, "billing.credits_allocated", audit.events[0].Type)
}

func TestIngestDuplicateDeliveryCreditsOnce(t *testing.T) {
	svc, ledgerSvc, _, _ := setupWebhook(t)
	ctx := context.Background()

	payload, sig := signedPayload(t, paymentEvent("pay-1", "u1", 10))
	require.NoError(t, svc.Ingest(ctx, payload, sig))

	err := svc.Ingest(ctx, payload, sig)
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	balance, err := ledgerSvc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestIngestCompletesPendingCheckout(t *testing.T) {
	svc, ledgerSvc, _, _ := setupWebhook(t)
	ctx := context.Background()

	require.NoError(t, ledgerSvc.RecordPending(ctx, "u1", 10, "pay-1", nil))

	payload, sig := signedPayload(t, paymentEvent("pay-1", "u1", 10))
	require.NoError(t, svc.Ingest(ctx, payload, sig))

	balance, err := ledgerSvc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestIngestInvalidPayload(t *testing.T) {
	svc, _, _, _ := setupWebhook(t)

	payload := []byte("not json")
	err := svc.Ingest(context.Background(), payload, Signature(testSecret, payload))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestIngestPaymentWithoutUserRejected(t *testing.T) {
	svc, _, _, _ := setupWebhook(t)

	payload, sig := signedPayload(t, paymentEvent("pay-1", "", 10))
	err := svc.Ingest(context.Background(), payload, sig)
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestIngestUnknownEventAcknowledged(t *testing.T) {
	svc, _, _, _ := setupWebhook(t)

	payload, sig := signedPayload(t, domain.Event{Event: "charge.dispute.create"})
	require.NoError(t, svc.Ingest(context.Background(), payload, sig))
}

func TestIngestSubscriptionLifecycle(t *testing.T) {
	svc, _, subSvc, _ := setupWebhook(t)
	ctx := context.Background()

	created := domain.Event{
		Event: domain.EventSubscriptionCreated,
		Data: domain.EventData{
			SubscriptionCode: "sub-1",
			PlanCode:         "plan-pro",
			Metadata:         domain.EventMetadata{UserID: "u1"},
		},
	}
	payload, sig := signedPayload(t, created)
	require.NoError(t, svc.Ingest(ctx, payload, sig))

	sub, err := subSvc.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	require.Equal(t, "u1", sub.UserID)

	disabled := domain.Event{
		Event: domain.EventSubscriptionDisabled,
		Data:  domain.EventData{SubscriptionCode: "sub-1"},
	}
	payload, sig = signedPayload(t, disabled)
	require.NoError(t, svc.Ingest(ctx, payload, sig))

	sub, err = subSvc.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusDisabled, sub.Status)
}
