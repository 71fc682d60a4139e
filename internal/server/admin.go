package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/pkg/db/pagination"
)

type resetRateLimitRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	OperationClass string `json:"operation_class" binding:"required"`
}

type adjustLedgerRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Credits   int64  `json:"credits" binding:"required"`
	Reference string `json:"reference" binding:"required"`
	Note      string `json:"note"`
}

func (s *Server) ResetRateLimit(c *gin.Context) {
	var req resetRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.ratelimitSvc.Reset(c.Request.Context(), req.UserID, req.OperationClass); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAdminAction(c, "admin.ratelimit_reset", req.UserID, map[string]any{
		"operation_class": req.OperationClass,
	})
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// AdjustLedger applies a manual correction. Positive credits go through the
// same idempotent allocation path as payments; negative ones are a balance-
// guarded charge, so an adjustment can never push an account negative.
func (s *Server) AdjustLedger(c *gin.Context) {
	ident, _ := currentIdentity(c)

	var req adjustLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	metadata := map[string]any{
		"source": "admin",
		"actor":  ident.UserID,
		"note":   req.Note,
	}

	if req.Credits > 0 {
		if err := s.ledgerSvc.Allocate(c.Request.Context(), req.UserID, req.Credits, req.Reference, metadata); err != nil {
			AbortWithError(c, err)
			return
		}
	} else {
		ok, err := s.ledgerSvc.Charge(c.Request.Context(), req.UserID, -req.Credits, req.Reference, metadata)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAdminAction(c, "admin.ledger_adjust", req.UserID, map[string]any{
		"credits":   req.Credits,
		"reference": req.Reference,
		"note":      req.Note,
	})
	c.JSON(http.StatusOK, gin.H{
		"user_id": req.UserID,
		"balance": balance,
	})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Pagination: page,
		EventType:  c.Query("event_type"),
		UserID:     c.Query("user_id"),
		Severity:   c.Query("severity"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) recordAdminAction(c *gin.Context, eventType, targetUserID string, details map[string]any) {
	ident, _ := currentIdentity(c)
	details["actor"] = ident.UserID

	_ = s.auditSvc.Record(c.Request.Context(), auditdomain.Event{
		Type:     eventType,
		UserID:   targetUserID,
		Severity: auditdomain.SeverityInfo,
		Status:   "completed",
		Details:  details,
	})
}
