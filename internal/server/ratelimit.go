package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) RateLimitStatus(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	class := c.Query("operation_class")
	result, err := s.ratelimitSvc.Status(c.Request.Context(), ident.UserID, class)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
