package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/logging"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/mailer"
	"github.com/rs/zerolog"
)

// @title Gatekeeper API
// @version 1.0
// @description Authentication and identity resolution with local, LDAP and OAuth2 logins.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT access token. Format: "Bearer {token}"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Msg("database ready")

	gin.SetMode(gin.ReleaseMode)
	srv := newServer(cfg, store, mailer.New(cfg.SMTP, logging.Component(logger, "mailer")), logger)

	if err := srv.ensureFirstSuperuser(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Bool("ldap", cfg.LDAP.Enabled).Msg("starting gatekeeper server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let queued recovery emails go out before the process exits.
	srv.reset.Wait()
	return nil
}
