package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/lumahq/lumina/internal/admission/domain"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/identity"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	paymentdomain "github.com/lumahq/lumina/internal/payment/domain"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
	subscriptiondomain "github.com/lumahq/lumina/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		// acknowledged; the gateway must not redeliver
		return http.StatusOK, errorPayload{
			Type:    "already_processed",
			Message: "event already processed",
		}
	case errors.Is(err, ledgerdomain.ErrDuplicateReference),
		errors.Is(err, ledgerdomain.ErrReferenceConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "reference already recorded",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, admissiondomain.ErrInvalidRequest),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidReference),
		errors.Is(err, ledgerdomain.ErrInvalidPageToken),
		errors.Is(err, ratelimitdomain.ErrInvalidUser),
		errors.Is(err, ratelimitdomain.ErrUnknownOperationClass),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, admissiondomain.ErrAdmissionNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
