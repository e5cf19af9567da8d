package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/admin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/ldap"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/logging"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/mailer"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/oauth2"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/users"
	"github.com/rs/zerolog"
)

// server holds the wired components of a running instance.
type server struct {
	cfg    *config.Config
	store  database.UserStore
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	reset  *auth.ResetService
	router *gin.Engine
	logger zerolog.Logger
}

// newServer wires every authenticator, service and handler on top of the
// given store and mail sender.
func newServer(cfg *config.Config, store database.UserStore, sender mailer.Sender, logger zerolog.Logger) *server {
	hasher := auth.NewPasswordHasher(cfg.PasswordHasher)
	tokens := auth.NewTokenService([]byte(cfg.SecretKey), cfg.ProjectName)
	local := auth.NewLocalAuthenticator(store, hasher)

	// A nil interface, not a nil *ldap.Authenticator, keeps the directory
	// step disabled.
	var directory auth.DirectoryAuthenticator
	if cfg.LDAP.Enabled {
		ldapLogger := logging.Component(logger, "ldap")
		resolver := ldap.NewResolver(store, cfg.LDAP.ConflictStrategy, ldapLogger)
		directory = ldap.NewAuthenticator(cfg.LDAP, ldap.NewNetworkDialer(cfg.LDAP), resolver, ldapLogger)
	}

	orchestrator := auth.NewOrchestrator(directory, local, logging.Component(logger, "auth"))
	sessions := auth.NewService(orchestrator, tokens, cfg.AccessTokenTTL)
	reset := auth.NewResetService(store, tokens, hasher, sender, auth.ResetConfig{
		TTL:         cfg.ResetTokenTTL,
		ProjectName: cfg.ProjectName,
		FrontendURL: cfg.FrontendURL,
	}, logging.Component(logger, "reset"))

	oauthLogger := logging.Component(logger, "oauth2")
	oauthService := oauth2.NewService(oauth2.NewProviders(cfg), store, tokens, sessions, oauth2.ServiceConfig{
		StateTTL: cfg.OAuth2StateTTL,
		Timeout:  cfg.OAuth2.Timeout,
	}, oauthLogger)

	var newAccountSender mailer.Sender
	if cfg.SMTP.Enabled() {
		newAccountSender = sender
	}

	s := &server{
		cfg:    cfg,
		store:  store,
		hasher: hasher,
		tokens: tokens,
		reset:  reset,
		logger: logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logging.Component(logger, "http")))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "gatekeeper",
			})
		})

		authHandler := auth.NewHandler(sessions, reset, tokens, store, logging.Component(logger, "auth"))
		authGroup := api.Group("/auth")
		authHandler.RegisterRoutes(authGroup)

		oauthHandler := oauth2.NewHandler(oauthService, cfg.FrontendURL, oauthLogger)
		oauthHandler.RegisterRoutes(authGroup)

		requireAuth := auth.AuthMiddleware(tokens, store)

		usersHandler := users.NewHandler(store, hasher, logging.Component(logger, "users"))
		usersHandler.RegisterRoutes(api.Group("/users"), requireAuth)

		// Admin routes (superuser required)
		adminHandler := admin.NewHandler(store, hasher, newAccountSender, admin.Config{
			ProjectName: cfg.ProjectName,
			FrontendURL: cfg.FrontendURL,
		}, logging.Component(logger, "admin"))
		adminGroup := api.Group("/admin")
		adminGroup.Use(requireAuth, auth.RequireSuperuser())
		adminHandler.RegisterRoutes(adminGroup)
	}

	s.router = r
	return s
}

// ensureFirstSuperuser creates the bootstrap superuser unless an account
// with that email already exists.
func (s *server) ensureFirstSuperuser(ctx context.Context) error {
	email := s.cfg.FirstSuperuser
	if email == "" {
		return nil
	}

	_, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return nil // Already exists
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("look up first superuser: %w", err)
	}

	if s.cfg.FirstSuperuserPassword == "" {
		s.logger.Warn().Str("email", email).Msg("FIRST_SUPERUSER_PASSWORD not set, skipping superuser bootstrap")
		return nil
	}

	hashedPassword, err := s.hasher.Hash(s.cfg.FirstSuperuserPassword)
	if err != nil {
		return err
	}

	err = s.store.Create(ctx, &models.User{
		Email:          email,
		FullName:       "Admin",
		HashedPassword: hashedPassword,
		IsActive:       true,
		IsSuperuser:    true,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create first superuser: %w", err)
	}

	s.logger.Info().Str("email", email).Msg("created first superuser")
	return nil
}
