package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/mailer"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

// Handler handles admin requests
type Handler struct {
	store       database.UserStore
	hasher      *auth.PasswordHasher
	sender      mailer.Sender
	projectName string
	frontendURL string
	logger      zerolog.Logger
}

// Config holds the settings used in new account emails.
type Config struct {
	ProjectName string
	FrontendURL string
}

// NewHandler creates a new admin handler. A nil sender disables new
// account emails.
func NewHandler(store database.UserStore, hasher *auth.PasswordHasher, sender mailer.Sender, cfg Config, logger zerolog.Logger) *Handler {
	return &Handler{
		store:       store,
		hasher:      hasher,
		sender:      sender,
		projectName: cfg.ProjectName,
		frontendURL: cfg.FrontendURL,
		logger:      logger,
	}
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Email       string `json:"email" binding:"required,email,max=255"`
	Password    string `json:"password" binding:"required,min=8,max=40"`
	FullName    string `json:"full_name" binding:"max=255"`
	IsActive    *bool  `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Email       *string `json:"email" binding:"omitempty,email,max=255"`
	Password    *string `json:"password" binding:"omitempty,min=8,max=40"`
	FullName    *string `json:"full_name" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// StatsResponse represents account statistics
type StatsResponse struct {
	TotalUsers     int64            `json:"total_users"`
	ActiveUsers    int64            `json:"active_users"`
	Superusers     int64            `json:"superusers"`
	DirectoryUsers int64            `json:"directory_users"`
	ProviderUsers  map[string]int64 `json:"provider_users"`
}

// ListUsers returns all users ordered by email (admin only)
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search in email and full name"
// @Success 200 {array} auth.UserResponse
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var (
		users []models.User
		err   error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err = h.store.Search(c.Request.Context(), q)
	} else {
		users, err = h.store.List(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]auth.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, auth.NewUserResponse(&users[i]))
	}

	c.JSON(http.StatusOK, responses)
}

// CreateUser creates a local account (admin only)
// @Summary Create user
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateUserRequest true "New user"
// @Success 200 {object} auth.UserResponse
// @Failure 400 {object} map[string]string "Invalid request or email already registered"
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	email := strings.TrimSpace(req.Email)
	if _, err := h.store.GetByEmail(ctx, email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The user with this email already exists in the system."})
		return
	} else if !errors.Is(err, database.ErrNotFound) {
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
		IsActive:       req.IsActive == nil || *req.IsActive,
		IsSuperuser:    req.IsSuperuser,
	}
	if err := h.store.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "The user with this email already exists in the system."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Bool("superuser", user.IsSuperuser).Msg("user created by admin")

	if h.sender != nil {
		h.sendNewAccountEmail(c, user.Email)
	}

	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// The account is already created, so delivery failures are only logged.
func (h *Handler) sendNewAccountEmail(c *gin.Context, email string) {
	msg, err := mailer.RenderNewAccount(mailer.NewAccountData{
		ProjectName: h.projectName,
		Email:       email,
		Link:        h.frontendURL,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("render new account email failed")
		return
	}
	if err := h.sender.Send(c.Request.Context(), email, msg.Subject, msg.HTML); err != nil {
		h.logger.Error().Err(err).Str("email", email).Msg("send new account email failed")
	}
}

// GetUser returns a single user by ID (admin only)
// @Summary Get user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} auth.UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	user, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// UpdateUser updates a user's profile, password or flags (admin only)
// @Summary Update user
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to update"
// @Success 200 {object} auth.UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Failure 409 {object} map[string]string "Email already in use"
// @Router /admin/users/{id} [patch]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetByID(ctx, id)
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from locking themselves out
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID &&
		((req.IsSuperuser != nil && !*req.IsSuperuser) || (req.IsActive != nil && !*req.IsActive)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	params := database.UpdateParams{
		FullName:    req.FullName,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		existing, err := h.store.GetByEmail(ctx, email)
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
	if req.Password != nil {
		hash, err := h.hasher.Hash(*req.Password)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
			return
		}
		params.HashedPassword = &hash
	}

	if params.Empty() {
		c.JSON(http.StatusOK, auth.NewUserResponse(user))
		return
	}

	updated, err := h.store.Update(ctx, user.ID, params)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		}
		return
	}

	c.JSON(http.StatusOK, auth.NewUserResponse(updated))
}

// DeleteUser deletes a user (admin only)
// @Summary Delete user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Superusers cannot delete themselves"
// @Failure 404 {object} map[string]string "User not found"
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Super users are not allowed to delete themselves"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.lookupFailed(c, err)
		return
	}

	h.logger.Info().Str("user_id", id.String()).Msg("user deleted by admin")
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns account statistics (admin only)
// @Summary Account statistics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	users, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	stats := StatsResponse{ProviderUsers: map[string]int64{}}
	for _, u := range users {
		stats.TotalUsers++
		if u.IsActive {
			stats.ActiveUsers++
		}
		if u.IsSuperuser {
			stats.Superusers++
		}
		if u.Username != nil {
			stats.DirectoryUsers++
		}
		if u.Provider != nil {
			stats.ProviderUsers[*u.Provider]++
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	h.logger.Error().Err(err).Msg("user lookup failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.GET("/users/:id", h.GetUser)
	rg.PATCH("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
