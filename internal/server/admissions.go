package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/lumahq/lumina/internal/admission/domain"
)

type createAdmissionRequest struct {
	OperationClass   string `json:"operation_class" binding:"required"`
	Instruction      string `json:"instruction"`
	FacesDetected    int    `json:"faces_detected"`
	PreserveIdentity bool   `json:"preserve_identity"`
}

func (s *Server) CreateAdmission(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req createAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.admissionSvc.Admit(c.Request.Context(), admissiondomain.Request{
		UserID:           ident.UserID,
		Email:            ident.Email,
		Privileged:       ident.Privileged,
		OperationClass:   req.OperationClass,
		Instruction:      req.Instruction,
		FacesDetected:    req.FacesDetected,
		PreserveIdentity: req.PreserveIdentity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(admissionStatus(result), result)
}

// admissionStatus maps a denial reason to its HTTP status. A denial is a
// well-formed answer, not an error, but the status still tells the client
// which gate closed.
func admissionStatus(result admissiondomain.Result) int {
	if result.Allowed {
		return http.StatusOK
	}
	switch result.Reason {
	case admissiondomain.ReasonRateLimited:
		return http.StatusTooManyRequests
	case admissiondomain.ReasonPolicyViolation:
		return http.StatusForbidden
	case admissiondomain.ReasonInsufficientCredits:
		return http.StatusPaymentRequired
	default:
		return http.StatusOK
	}
}

// CompensateAdmission takes no body: the refunded amount is resolved from
// the recorded charge, so a client can only ever get back what it paid.
func (s *Server) CompensateAdmission(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	if err := s.admissionSvc.Compensate(c.Request.Context(), c.Param("id"), ident.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}
