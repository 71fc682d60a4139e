package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/policy"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
)

// Request is everything the admission decision needs. Face counting and
// identity extraction happen upstream; by the time a request lands here it
// is already authenticated.
type Request struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	Privileged       bool   `json:"privileged"`
	OperationClass   string `json:"operation_class"`
	Instruction      string `json:"instruction"`
	FacesDetected    int    `json:"faces_detected"`
	PreserveIdentity bool   `json:"preserve_identity"`
}

const (
	ReasonRateLimited         = "rate_limited"
	ReasonPolicyViolation     = "policy_violation"
	ReasonInsufficientCredits = "insufficient_credits"
)

type Result struct {
	AdmissionID    string                 `json:"admission_id"`
	Allowed        bool                   `json:"allowed"`
	Reason         string                 `json:"reason,omitempty"`
	PolicyReasons  []string               `json:"policy_reasons,omitempty"`
	RiskLevel      policy.RiskLevel       `json:"risk_level,omitempty"`
	CreditsCharged int64                  `json:"credits_charged"`
	RateLimit      ratelimitdomain.Result `json:"rate_limit"`
}

// RateLimiter is the slice of the rate-limit service admission depends on.
type RateLimiter interface {
	Allow(ctx context.Context, userID, operationClass string, privileged bool) (ratelimitdomain.Result, error)
}

// PolicyEvaluator is the slice of the policy engine admission depends on.
type PolicyEvaluator interface {
	Evaluate(instruction string, facesDetected int, preserveIdentity bool) policy.Decision
}

// CreditLedger is the slice of the ledger admission depends on.
type CreditLedger interface {
	Charge(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) (bool, error)
	FindByReference(ctx context.Context, externalReference string) (*ledgerdomain.Entry, error)
	Refund(ctx context.Context, userID string, amount int64, reference string, metadata map[string]any) error
}

type Service interface {
	// Admit runs the gate sequence for one request: rate limit, then
	// policy, then charge. A denial at any stage returns a Result with
	// Allowed false and a reason; only store failures return an error.
	Admit(ctx context.Context, req Request) (Result, error)

	// Compensate refunds the charge of a previously admitted request whose
	// downstream work failed. The refunded amount comes from the recorded
	// charge entry, never from the caller. Safe to call more than once for
	// the same admission.
	Compensate(ctx context.Context, admissionID, userID string) error
}

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrAdmissionNotFound = errors.New("admission_not_found")
	ErrStoreFailure      = errors.New("store_failure")
)
