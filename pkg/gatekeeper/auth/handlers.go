package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

// Handler handles authentication requests
type Handler struct {
	service *Service
	reset   *ResetService
	tokens  *TokenService
	store   database.UserStore
	logger  zerolog.Logger
}

// NewHandler creates a new auth handler
func NewHandler(service *Service, reset *ResetService, tokens *TokenService, store database.UserStore, logger zerolog.Logger) *Handler {
	return &Handler{service: service, reset: reset, tokens: tokens, store: store, logger: logger}
}

// LoginRequest represents the login request. Username may hold a directory
// username, a local username or an email address.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// TokenResponse represents the access token response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ResetPasswordRequest represents the reset password request body
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=40"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	FullName    string    `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	Provider    string    `json:"provider,omitempty"`
	Picture     string    `json:"picture,omitempty"`
}

// NewUserResponse converts a user record to its public representation.
func NewUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.UsernameValue(),
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		Picture:     u.Picture,
	}
	if u.Provider != nil {
		resp.Provider = *u.Provider
	}
	return resp
}

// AccessToken handles login
// @Summary Login
// @Description Authenticate with username or email and password to receive an access token
// @Tags auth
// @Accept x-www-form-urlencoded,json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/access-token [post]
func (h *Handler) AccessToken(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, _, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect email or password"})
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// TestToken returns the user the access token belongs to
// @Summary Test access token
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/test-token [post]
func (h *Handler) TestToken(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user))
}

// Logout handles user logout (client-side token invalidation)
// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RecoverPassword sends a password recovery email. The answer is the same
// whether or not the address is registered.
// @Summary Request password recovery
// @Tags auth
// @Produce json
// @Param email path string true "Account email"
// @Success 202 {object} map[string]string
// @Router /auth/password-recovery/{email} [post]
func (h *Handler) RecoverPassword(c *gin.Context) {
	email := c.Param("email")

	err := h.reset.RequestReset(c.Request.Context(), email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		h.logger.Debug().Str("email", email).Msg("password recovery for unknown email")
	case err != nil:
		h.logger.Error().Err(err).Str("email", email).Msg("password recovery failed")
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "If that email is registered, a password recovery email has been sent"})
}

// ResetPassword sets a new password using a reset token
// @Summary Reset password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid token or inactive user"
// @Failure 404 {object} map[string]string "User not found"
// @Router /auth/reset-password [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.reset.RedeemReset(c.Request.Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	case errors.Is(err, ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "The user with this email does not exist in the system"})
	case errors.Is(err, ErrInactiveUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
	case errors.Is(err, ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("password reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
	}
}

// RecoverPasswordHTMLContent renders the recovery email for inspection
// @Summary Preview password recovery email
// @Tags auth
// @Produce html
// @Param email path string true "Account email"
// @Success 200 {string} string "HTML content"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /auth/password-recovery-html-content/{email} [post]
func (h *Handler) RecoverPasswordHTMLContent(c *gin.Context) {
	msg, err := h.reset.GenerateResetEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "The user with this username does not exist in the system"})
			return
		}
		h.logger.Error().Err(err).Msg("render recovery email failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render email"})
		return
	}

	c.Header("subject", msg.Subject)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(msg.HTML))
}

// Middleware returns the access token middleware bound to this handler's
// token service and store.
func (h *Handler) Middleware() gin.HandlerFunc {
	return AuthMiddleware(h.tokens, h.store)
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/access-token", h.AccessToken)
	rg.POST("/logout", h.Logout)
	rg.POST("/test-token", h.Middleware(), h.TestToken)
	rg.POST("/password-recovery/:email", h.RecoverPassword)
	rg.POST("/reset-password", h.ResetPassword)
	rg.POST("/password-recovery-html-content/:email", h.Middleware(), RequireSuperuser(), h.RecoverPasswordHTMLContent)
}
