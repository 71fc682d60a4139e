package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Webhook-Signature"

// PaymentWebhook is unauthenticated by design; the HMAC signature over the
// raw body is the only credential the gateway presents.
func (s *Server) PaymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
