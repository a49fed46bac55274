package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el access token y exige que su email coincida con
// el usuario de la sesión activa del proceso.
func JWTAuthMiddleware(jwtSvc *service.JWTService, state *service.SessionState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil || state == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrJWTExpired) {
				msg = "token expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}

		snap := state.Snapshot()
		if !snap.Authenticated() || !domain.SameEmail(snap.User.Email, claims.Email) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session ended"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
