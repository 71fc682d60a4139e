package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/pkg/db/pagination"
)

func (s *Server) LedgerBalance(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), ident.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": ident.UserID,
		"balance": balance,
	})
}

func (s *Server) LedgerEntries(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.ledgerSvc.Entries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		Pagination: page,
		UserID:     ident.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
