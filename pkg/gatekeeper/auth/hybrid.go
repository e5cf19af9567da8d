package auth

import (
	"context"
	"errors"
	"time"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

// DirectoryAuthenticator verifies credentials against an external directory.
// It returns nil on any failure; errors are logged by the implementation.
type DirectoryAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) *models.User
}

// Orchestrator tries the directory first, then local username, then local
// email. The first source that accepts the credentials wins.
type Orchestrator struct {
	directory DirectoryAuthenticator
	local     *LocalAuthenticator
	logger    zerolog.Logger
}

// NewOrchestrator creates an orchestrator. directory may be nil when LDAP is
// disabled.
func NewOrchestrator(directory DirectoryAuthenticator, local *LocalAuthenticator, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{directory: directory, local: local, logger: logger}
}

// Authenticate resolves identifier and password to a user. It returns
// ErrInvalidCredentials when no source accepts them; store errors from the
// local lookups are returned as is.
func (o *Orchestrator) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	if o.directory != nil {
		if user := o.directory.Authenticate(ctx, identifier, password); user != nil {
			o.logger.Debug().Str("source", "ldap").Str("user_id", user.ID.String()).Msg("authenticated")
			return user, nil
		}
	}

	user, err := o.local.AuthenticateByUsername(ctx, identifier, password)
	if err == nil {
		o.logger.Debug().Str("source", "local_username").Str("user_id", user.ID.String()).Msg("authenticated")
		return user, nil
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		return nil, err
	}

	user, err = o.local.AuthenticateByEmail(ctx, identifier, password)
	if err == nil {
		o.logger.Debug().Str("source", "local_email").Str("user_id", user.ID.String()).Msg("authenticated")
		return user, nil
	}
	return nil, err
}

// Service mints access tokens for authenticated users.
type Service struct {
	orchestrator *Orchestrator
	tokens       *TokenService
	accessTTL    time.Duration
}

// NewService creates the login service.
func NewService(orchestrator *Orchestrator, tokens *TokenService, accessTTL time.Duration) *Service {
	return &Service{orchestrator: orchestrator, tokens: tokens, accessTTL: accessTTL}
}

// Login authenticates the credentials and returns an access token. Inactive
// users are rejected with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (string, *models.User, error) {
	user, err := s.orchestrator.Authenticate(ctx, identifier, password)
	if err != nil {
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueAccessToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueAccessToken creates an access token whose subject is the user ID.
func (s *Service) IssueAccessToken(user *models.User) (string, error) {
	return s.tokens.Issue(user.ID.String(), s.accessTTL, PurposeAccess)
}
