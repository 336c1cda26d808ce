package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finance-tracker/internal/domain"
	"finance-tracker/internal/service"
)

const identityKey = "auth_identity"

// TokenVerifier devuelve el subject de un access token valido.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// IdentityResolver resuelve el subject contra el directorio de usuarios.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, subject string) (domain.User, error)
}

// JWTAuthMiddleware valida el bearer token, vuelve a cargar al usuario y lo guarda en el contexto.
func JWTAuthMiddleware(logger *zap.Logger, tokens TokenVerifier, identities IdentityResolver, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil || identities == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			metrics.RecordAuthEvent("gate", OutcomeFailure)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		subject, err := tokens.Verify(token)
		if err != nil {
			metrics.RecordAuthEvent("gate", OutcomeFailure)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		user, err := identities.ResolveIdentity(c.Request.Context(), subject)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserNotFound):
				metrics.RecordAuthEvent("gate", OutcomeFailure)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
			case errors.Is(err, service.ErrTransient):
				metrics.RecordAuthEvent("gate", OutcomeError)
				logger.Warn("identity resolution unavailable", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
			default:
				metrics.RecordAuthEvent("gate", OutcomeError)
				logger.Error("identity resolution failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
			return
		}

		c.Set(identityKey, user)
		c.Next()
	}
}

// CurrentIdentity obtiene el usuario resuelto por JWTAuthMiddleware.
func CurrentIdentity(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(identityKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
