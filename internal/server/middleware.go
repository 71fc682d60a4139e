package server

import (
	"github.com/gin-gonic/gin"
	"github.com/lumahq/lumina/internal/identity"
)

const identityKey = "identity"

// RequireAuth resolves the bearer token to an identity and stores it on the
// request context. Everything behind it can assume an authenticated caller.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.FromBearer(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ident, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

func (s *Server) RequirePrivileged() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := currentIdentity(c)
		if !ok || !ident.Privileged {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := v.(identity.Identity)
	return ident, ok
}
