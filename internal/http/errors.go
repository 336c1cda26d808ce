package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finance-tracker/internal/service"
)

// writeError traduce la taxonomia del servicio a status HTTP. El error crudo solo va al log.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var verr *service.ValidationError
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "details": verr.Fields})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrJWTInvalid), errors.Is(err, service.ErrJWTExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
	case errors.Is(err, service.ErrTransient):
		logger.Warn(op+" unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// outcomeFor clasifica un error para las metricas de autenticacion.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, service.ErrValidation):
		return OutcomeInvalid
	case errors.Is(err, service.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, service.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrJWTInvalid),
		errors.Is(err, service.ErrJWTExpired),
		errors.Is(err, service.ErrUserNotFound):
		return OutcomeFailure
	default:
		return OutcomeError
	}
}
