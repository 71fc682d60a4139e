package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/lumahq/lumina/internal/payment/domain"
)

type createCheckoutRequest struct {
	Credits int64 `json:"credits" binding:"required"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	checkout, err := s.gateway.InitializeCheckout(c.Request.Context(), paymentdomain.CheckoutRequest{
		Email:    ident.Email,
		Amount:   req.Credits * s.cfg.CreditUnitPrice,
		Currency: s.cfg.Currency,
		Metadata: paymentdomain.EventMetadata{
			UserID:  ident.UserID,
			Credits: req.Credits,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// the pending entry is what the reconciliation sweep later picks up if
	// the gateway's webhook never lands
	err = s.ledgerSvc.RecordPending(c.Request.Context(), ident.UserID, req.Credits, checkout.Reference, map[string]any{
		"source": "checkout",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkout)
}
