package users

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

// Handler handles self-service user requests
type Handler struct {
	store  database.UserStore
	hasher *auth.PasswordHasher
	logger zerolog.Logger
}

// NewHandler creates a new users handler
func NewHandler(store database.UserStore, hasher *auth.PasswordHasher, logger zerolog.Logger) *Handler {
	return &Handler{store: store, hasher: hasher, logger: logger}
}

// SignupRequest represents the public registration request
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=40"`
	FullName string `json:"full_name" binding:"max=255"`
}

// UpdateMeRequest represents the request to update the current user
type UpdateMeRequest struct {
	Email    *string `json:"email" binding:"omitempty,email,max=255"`
	FullName *string `json:"full_name" binding:"omitempty,max=255"`
}

// UpdatePasswordRequest represents the request to change the current user's password
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,min=8,max=40"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=40"`
}

// Signup registers a new local account
// @Summary Register
// @Description Create a new account without being logged in
// @Tags users
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Registration details"
// @Success 200 {object} auth.UserResponse
// @Failure 400 {object} map[string]string "Invalid request or email already registered"
// @Router /users/signup [post]
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(req.Email)
	if _, err := h.store.GetByEmail(c.Request.Context(), email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The user with this email already exists in the system"})
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error().Err(err).Msg("signup lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := &models.User{
		Email:          email,
		HashedPassword: hash,
		FullName:       req.FullName,
		IsActive:       true,
	}
	if err := h.store.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "The user with this email already exists in the system"})
			return
		}
		h.logger.Error().Err(err).Msg("signup create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Msg("user signed up")
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// GetMe returns the current user
// @Summary Get current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} auth.UserResponse
// @Failure 401 {object} map[string]string "Not authenticated"
// @Router /users/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	user, _ := auth.GetCurrentUser(c)
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// UpdateMe updates the current user's name or email
// @Summary Update current user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateMeRequest true "Fields to update"
// @Success 200 {object} auth.UserResponse
// @Failure 409 {object} map[string]string "Email already in use"
// @Router /users/me [patch]
func (h *Handler) UpdateMe(c *gin.Context) {
	user, _ := auth.GetCurrentUser(c)

	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var params database.UpdateParams
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		existing, err := h.store.GetByEmail(c.Request.Context(), email)
		if err == nil && existing.ID != user.ID {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		params.Email = &email
	}
	if req.FullName != nil {
		params.FullName = req.FullName
	}

	if params.Empty() {
		c.JSON(http.StatusOK, auth.NewUserResponse(user))
		return
	}

	updated, err := h.store.Update(c.Request.Context(), user.ID, params)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	c.JSON(http.StatusOK, auth.NewUserResponse(updated))
}

// UpdatePassword changes the current user's password
// @Summary Change password
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdatePasswordRequest true "Current and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Incorrect password"
// @Router /users/me/password [patch]
func (h *Handler) UpdatePassword(c *gin.Context) {
	user, _ := auth.GetCurrentUser(c)

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.hasher.Verify(req.CurrentPassword, user.HashedPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect password"})
		return
	}
	if req.CurrentPassword == req.NewPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password cannot be the same as the current one"})
		return
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}
	if _, err := h.store.Update(c.Request.Context(), user.ID, database.UpdateParams{HashedPassword: &hash}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// DeleteMe deletes the current user
// @Summary Delete current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Superusers cannot delete themselves"
// @Router /users/me [delete]
func (h *Handler) DeleteMe(c *gin.Context) {
	user, _ := auth.GetCurrentUser(c)

	if user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Super users are not allowed to delete themselves"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Msg("user deleted own account")
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// RegisterRoutes registers user routes. Everything except signup runs
// behind requireAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/signup", h.Signup)

	me := rg.Group("/me", requireAuth)
	me.GET("", h.GetMe)
	me.PATCH("", h.UpdateMe)
	me.PATCH("/password", h.UpdatePassword)
	me.DELETE("", h.DeleteMe)
}
