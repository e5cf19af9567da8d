package oauth2

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/rs/zerolog"
)

// stateCookie binds a login attempt to the browser that started it.
const stateCookie = "oauth2_state"

// Handler handles OAuth2-related requests
type Handler struct {
	service     *Service
	frontendURL string
	logger      zerolog.Logger
}

// NewHandler creates a new OAuth2 handler
func NewHandler(service *Service, frontendURL string, logger zerolog.Logger) *Handler {
	return &Handler{service: service, frontendURL: strings.TrimRight(frontendURL, "/"), logger: logger}
}

// Status returns whether each provider is enabled and configured
// @Summary OAuth2 provider status
// @Tags oauth2
// @Produce json
// @Success 200 {object} map[string]ProviderStatus
// @Router /auth/oauth2/status [get]
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Login redirects to the provider's authorization page
// @Summary Start OAuth2 login
// @Tags oauth2
// @Param provider path string true "google, github or apple"
// @Success 307
// @Failure 400 {object} map[string]string "Unsupported or unconfigured provider"
// @Router /auth/oauth2/{provider} [get]
func (h *Handler) Login(c *gin.Context) {
	authURL, stateID, err := h.service.AuthorizationURL(c.Param("provider"))
	if err != nil {
		if errors.Is(err, ErrUnsupportedProvider) || errors.Is(err, ErrProviderNotConfigured) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("build authorization url failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start login"})
		return
	}

	h.setStateCookie(c, stateID, int(h.service.stateTTL.Seconds()))
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback handles the OAuth2 callback
// @Summary OAuth2 callback
// @Tags oauth2
// @Param provider path string true "google, github or apple"
// @Param code query string true "Authorization code"
// @Param state query string true "State issued by the login endpoint"
// @Success 307
// @Failure 400 {object} map[string]string "Authentication failed"
// @Failure 501 {object} map[string]string "Provider not implemented"
// @Router /auth/oauth2/{provider}/callback [get]
func (h *Handler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	stateID, _ := c.Cookie(stateCookie)
	h.setStateCookie(c, "", -1)

	if providerErr := c.Query("error"); providerErr != "" {
		desc := c.Query("error_description")
		if desc == "" {
			desc = providerErr
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed: " + desc})
		return
	}

	token, _, err := h.service.HandleCallback(c.Request.Context(), provider, c.Query("code"), c.Query("state"), stateID)
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider).Msg("oauth2 callback failed")
		switch {
		case errors.Is(err, ErrNotImplemented):
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrInactiveUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
		case errors.Is(err, ErrUnsupportedProvider),
			errors.Is(err, ErrProviderNotConfigured),
			errors.Is(err, ErrInvalidState),
			errors.Is(err, ErrMissingCode),
			errors.Is(err, ErrNoEmail),
			errors.Is(err, ErrUpstream):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth2 authentication failed: " + err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process user"})
		}
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/oauth2/callback?access_token="+url.QueryEscape(token))
}

func (h *Handler) setStateCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	// Lax so the cookie survives the provider's top-level redirect back.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, value, maxAge, "/", "", secure, true)
}

// RegisterRoutes registers OAuth2 routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/oauth2/status", h.Status)
	rg.GET("/oauth2/:provider", h.Login)
	rg.GET("/oauth2/:provider/callback", h.Callback)
}
