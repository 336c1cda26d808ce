package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finance-tracker/internal/domain"
	"finance-tracker/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints /auth.
type AuthHandler struct {
	logger  *zap.Logger
	auth    *service.AuthService
	metrics *Metrics
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, auth *service.AuthService, metrics *Metrics) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		auth:    auth,
		metrics: metrics,
	}
}

type tokenResponse struct {
	AccessToken  string             `json:"access_token"`
	TokenType    string             `json:"token_type"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *domain.PublicUser `json:"user,omitempty"`
}

func newTokenResponse(res service.LoginResult, withUser bool) tokenResponse {
	resp := tokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		TokenType:    res.Tokens.TokenType,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresIn:    res.Tokens.ExpiresIn,
	}
	if withUser {
		user := res.User
		resp.User = &user
	}
	return resp
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Username string `json:"username"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Phone:    req.Phone,
		Password: req.Password,
	})
	h.metrics.RecordAuthEvent("register", outcomeFor(err))
	if err != nil {
		writeError(c, h.logger, "register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	h.metrics.RecordAuthEvent("login", outcomeFor(err))
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(res, true))
}

// Refresh maneja POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	h.metrics.RecordAuthEvent("refresh", outcomeFor(err))
	if err != nil {
		writeError(c, h.logger, "refresh", err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(res, false))
}

// Logout maneja POST /auth/logout. Un token ya invalido tambien responde 204.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.auth.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil && !errors.Is(err, service.ErrJWTInvalid) && !errors.Is(err, service.ErrJWTExpired) {
		h.metrics.RecordAuthEvent("logout", OutcomeError)
		writeError(c, h.logger, "logout", err)
		return
	}
	h.metrics.RecordAuthEvent("logout", OutcomeSuccess)
	c.Status(http.StatusNoContent)
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, _ := CurrentIdentity(c)
	user, err := h.auth.GetCurrentUser(identity)
	if err != nil {
		writeError(c, h.logger, "get current user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe maneja PUT /auth/me.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Name  *string `json:"name"`
		Phone *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, _ := CurrentIdentity(c)
	user, err := h.auth.UpdateCurrentUser(c.Request.Context(), identity, service.UpdateInput{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		writeError(c, h.logger, "update current user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}
