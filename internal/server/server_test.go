package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/lumahq/lumina/internal/admission/domain"
	paymentdomain "github.com/lumahq/lumina/internal/payment/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webhookStub struct {
	err error
}

func (w *webhookStub) Ingest(ctx context.Context, payload []byte, signature string) error {
	return w.err
}

func newWebhookServer(t *testing.T, ingestErr error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := NewEngine(zap.NewNop(), nil)
	s := &Server{
		engine:     engine,
		log:        zap.NewNop(),
		webhookSvc: &webhookStub{err: ingestErr},
	}
	s.registerWebhookRoutes()
	return engine
}

func postWebhook(engine *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`))
	req.Header.Set("X-Webhook-Signature", "sig")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhookOK(t *testing.T) {
	rec := postWebhook(newWebhookServer(t, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookDuplicateAcknowledged(t *testing.T) {
	// a duplicate must be acknowledged or the gateway retries forever
	rec := postWebhook(newWebhookServer(t, paymentdomain.ErrEventAlreadyProcessed))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	rec := postWebhook(newWebhookServer(t, paymentdomain.ErrInvalidSignature))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhookBadPayload(t *testing.T) {
	rec := postWebhook(newWebhookServer(t, paymentdomain.ErrInvalidPayload))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmissionStatusMapping(t *testing.T) {
	cases := []struct {
		result admissiondomain.Result
		want   int
	}{
		{admissiondomain.Result{Allowed: true}, http.StatusOK},
		{admissiondomain.Result{Reason: admissiondomain.ReasonRateLimited}, http.StatusTooManyRequests},
		{admissiondomain.Result{Reason: admissiondomain.ReasonPolicyViolation}, http.StatusForbidden},
		{admissiondomain.Result{Reason: admissiondomain.ReasonInsufficientCredits}, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, admissionStatus(tc.result), "reason %q", tc.result.Reason)
	}
}
