package domain

import (
	"context"
	"errors"
	"time"
)

const (
	EventPaymentSucceeded     = "payment.succeeded"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionDisabled = "subscription.disabled"
)

// Event is the gateway's webhook envelope.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference        string        `json:"reference"`
	Amount           int64         `json:"amount"`
	Status           string        `json:"status"`
	Metadata         EventMetadata `json:"metadata"`
	SubscriptionCode string        `json:"subscription_code,omitempty"`
	PlanCode         string        `json:"plan_code,omitempty"`
	EmailToken       string        `json:"email_token,omitempty"`
}

// EventMetadata is round-tripped through the gateway from checkout
// initialization; it is how a payment finds its way back to a user.
type EventMetadata struct {
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
}

type TransactionStatus string

const (
	TransactionSuccess   TransactionStatus = "success"
	TransactionFailed    TransactionStatus = "failed"
	TransactionAbandoned TransactionStatus = "abandoned"
	TransactionPending   TransactionStatus = "pending"
)

// Settled reports whether the gateway considers the transaction final.
func (s TransactionStatus) Settled() bool {
	return s == TransactionSuccess || s == TransactionFailed || s == TransactionAbandoned
}

type Transaction struct {
	Reference string            `json:"reference"`
	Status    TransactionStatus `json:"status"`
	Amount    int64             `json:"amount"`
	Metadata  EventMetadata     `json:"metadata"`
}

type CheckoutRequest struct {
	Email    string        `json:"email"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	Metadata EventMetadata `json:"metadata"`
}

type CheckoutResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// Gateway is the outbound payment-provider API surface this service consumes.
type Gateway interface {
	InitializeCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (Transaction, error)
}

// Webhook ingests signed gateway notifications.
type Webhook interface {
	Ingest(ctx context.Context, payload []byte, signature string) error
}

// Outcome summarizes one reconciliation sweep.
type Outcome struct {
	Scanned  int `json:"scanned"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
}

// Reconciler re-checks aging pending allocations against the gateway.
// A zero lookback means the configured default.
type Reconciler interface {
	Reconcile(ctx context.Context, lookback time.Duration) (Outcome, error)
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrTransactionNotFound   = errors.New("transaction_not_found")
)
