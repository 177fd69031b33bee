package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/service"
	"github.com/sirupsen/logrus"
)

// RefreshCookie is the HttpOnly cookie holding the refresh token
const RefreshCookie = "refresh_token"

// Info describes the running server on GET /api/info
type Info struct {
	AppName     string `json:"app_name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// AuthHandlers contains HTTP handlers for auth and API endpoints
type AuthHandlers struct {
	authService  *service.AuthService
	info         Info
	log          logrus.FieldLogger
	cookiePath   string
	secureCookie bool
	started      time.Time
}

// NewAuthHandlers creates new handlers
func NewAuthHandlers(authService *service.AuthService, cfg Config) *AuthHandlers {
	return &AuthHandlers{
		authService:  authService,
		info:         cfg.Info,
		log:          cfg.Logger,
		cookiePath:   cfg.Prefix,
		secureCookie: cfg.SecureCookie,
		started:      time.Now(),
	}
}

// Token exchanges form credentials for an access token and sets the refresh cookie
func (h *AuthHandlers) Token(c *gin.Context) {
	var req struct {
		Username string `form:"username" binding:"required"`
		Password string `form:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		return
	}

	h.issue(c, pair)
}

// Refresh rotates the refresh cookie and returns a new access token
func (h *AuthHandlers) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(RefreshCookie)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing refresh token"})
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			h.clearCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token expired"})
		case errors.Is(err, core.ErrTokenInvalidated):
			h.clearCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token has been invalidated"})
		case errors.Is(err, core.ErrInvalidToken):
			h.clearCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh tokens"})
		}
		return
	}

	h.issue(c, pair)
}

// Logout revokes the refresh cookie if there is one. It always succeeds for
// the caller unless the revocation store fails.
func (h *AuthHandlers) Logout(c *gin.Context) {
	refreshToken, err := c.Cookie(RefreshCookie)
	if err == nil && refreshToken != "" {
		err = h.authService.Logout(c.Request.Context(), refreshToken)
		if err != nil && !errors.Is(err, core.ErrInvalidToken) {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
			return
		}
	}

	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Health is the public readiness check
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"ready":     true,
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"service":   h.info.AppName,
	})
}

// Info returns static application information
func (h *AuthHandlers) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

// Hello greets the authenticated user
func (h *AuthHandlers) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello " + c.GetString(subjectKey) + "!"})
}

// PredictPayload is the input of a prediction
type PredictPayload struct {
	Count *int `json:"count" binding:"required"`
}

// PredictRequest is the body of POST /api/predict
type PredictRequest struct {
	Data PredictPayload `json:"data" binding:"required"`
}

// PredictResponse is a mock prediction echoing its input
type PredictResponse struct {
	Prediction    string         `json:"prediction"`
	Confidence    float64        `json:"confidence"`
	InputReceived PredictPayload `json:"input_received"`
}

// Predict returns a canned prediction for the authenticated user
func (h *AuthHandlers) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request"})
		return
	}

	result := PredictResponse{
		Prediction:    "sample",
		Confidence:    0.95,
		InputReceived: req.Data,
	}

	h.log.WithFields(logrus.Fields{
		"subject": c.GetString(subjectKey),
		"count":   *req.Data.Count,
	}).Infoln("Prediction served")

	c.JSON(http.StatusOK, result)
}

func (h *AuthHandlers) issue(c *gin.Context, pair *service.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookie, pair.RefreshToken, int(pair.RefreshTTL.Seconds()), h.cookiePath, "", h.secureCookie, true)

	c.JSON(http.StatusOK, gin.H{
		"access_token": pair.AccessToken,
		"token_type":   "bearer",
		"expires_in":   int(pair.AccessTTL.Seconds()),
	})
}

func (h *AuthHandlers) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookie, "", -1, h.cookiePath, "", h.secureCookie, true)
}
