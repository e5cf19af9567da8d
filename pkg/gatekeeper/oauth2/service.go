package oauth2

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
	xoauth2 "golang.org/x/oauth2"
)

// Service runs the authorization code flow and maps provider identities to
// local users.
type Service struct {
	providers  map[string]Provider
	store      database.UserStore
	tokens     *auth.TokenService
	sessions   *auth.Service
	stateTTL   time.Duration
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// ServiceConfig holds the flow settings.
type ServiceConfig struct {
	StateTTL time.Duration
	Timeout  time.Duration
}

// NewService creates the OAuth2 service.
func NewService(providers map[string]Provider, store database.UserStore, tokens *auth.TokenService, sessions *auth.Service, cfg ServiceConfig, logger zerolog.Logger) *Service {
	return &Service{
		providers:  providers,
		store:      store,
		tokens:     tokens,
		sessions:   sessions,
		stateTTL:   cfg.StateTTL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// ProviderStatus reports the configuration of one provider.
type ProviderStatus struct {
	Enabled    bool `json:"enabled"`
	Configured bool `json:"configured"`
}

// Status returns the configuration of every known provider.
func (s *Service) Status() map[string]ProviderStatus {
	status := make(map[string]ProviderStatus, len(s.providers))
	for name, p := range s.providers {
		status[name] = ProviderStatus{Enabled: p.Enabled(), Configured: p.Configured()}
	}
	return status
}

// AuthorizationURL returns the provider login URL carrying a fresh signed
// state, and the state's ID which the caller must hand back to
// HandleCallback from the same browser.
func (s *Service) AuthorizationURL(providerName string) (authURL, stateID string, err error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", "", err
	}

	state, stateID, err := s.tokens.IssueWithID(p.Name(), s.stateTTL, auth.PurposeOAuth2State)
	if err != nil {
		return "", "", err
	}
	return p.AuthCodeURL(state), stateID, nil
}

// HandleCallback completes the login and returns an access token for the
// resolved user. stateID must match the ID of state.
func (s *Service) HandleCallback(ctx context.Context, providerName, code, state, stateID string) (string, *models.User, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", nil, err
	}

	claims, err := s.tokens.Verify(state, auth.PurposeOAuth2State)
	if err != nil || claims.Subject != p.Name() {
		return "", nil, ErrInvalidState
	}
	if stateID == "" || subtle.ConstantTimeCompare([]byte(claims.ID), []byte(stateID)) != 1 {
		return "", nil, ErrInvalidState
	}
	if code == "" {
		return "", nil, ErrMissingCode
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, s.httpClient)

	token, err := p.Exchange(ctx, code)
	if err != nil {
		return "", nil, upstream("exchange code", err)
	}

	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		return "", nil, upstream("fetch profile", err)
	}
	if profile.Email == "" {
		return "", nil, ErrNoEmail
	}

	user, err := s.ResolveOrCreateUser(ctx, p.Name(), *profile)
	if err != nil {
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, auth.ErrInactiveUser
	}

	accessToken, err := s.sessions.IssueAccessToken(user)
	if err != nil {
		return "", nil, err
	}
	return accessToken, user, nil
}

// ResolveOrCreateUser finds the user linked to the provider identity, then
// the user with the same email, and creates one if neither exists.
func (s *Service) ResolveOrCreateUser(ctx context.Context, provider string, profile Profile) (*models.User, error) {
	user, err := s.resolve(ctx, provider, profile)
	if errors.Is(err, database.ErrDuplicate) {
		s.logger.Debug().Str("provider", provider).Msg("concurrent create detected, resolving again")
		user, err = s.resolve(ctx, provider, profile)
	}
	return user, err
}

func (s *Service) resolve(ctx context.Context, provider string, profile Profile) (*models.User, error) {
	user, err := s.store.GetByProvider(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return s.updateProfile(ctx, user, profile, nil)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	user, err = s.store.GetByEmail(ctx, profile.Email)
	if err == nil {
		var link *linkParams
		if user.Provider == nil {
			link = &linkParams{provider: provider, providerUserID: profile.ProviderUserID}
		} else {
			s.logger.Info().
				Str("user_id", user.ID.String()).
				Str("linked_provider", *user.Provider).
				Str("provider", provider).
				Msg("email already linked to another provider identity")
		}
		return s.updateProfile(ctx, user, profile, link)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	user = &models.User{
		Email:          profile.Email,
		HashedPassword: models.UnusablePassword,
		FullName:       profile.Name,
		IsActive:       true,
		Provider:       models.StringPtr(provider),
		ProviderUserID: models.StringPtr(profile.ProviderUserID),
		Picture:        profile.Picture,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID.String()).Str("provider", provider).Msg("created user from provider")
	return user, nil
}

type linkParams struct {
	provider       string
	providerUserID string
}

func (s *Service) updateProfile(ctx context.Context, user *models.User, profile Profile, link *linkParams) (*models.User, error) {
	var params database.UpdateParams
	if profile.Name != "" && profile.Name != user.FullName {
		params.FullName = &profile.Name
	}
	if profile.Picture != "" && profile.Picture != user.Picture {
		params.Picture = &profile.Picture
	}
	if link != nil {
		params.Provider = &link.provider
		params.ProviderUserID = &link.providerUserID
	}
	if params.Empty() {
		return user, nil
	}
	return s.store.Update(ctx, user.ID, params)
}

func (s *Service) provider(name string) (Provider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	if !p.Enabled() || !p.Configured() {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p.Name())
	}
	return p, nil
}

func upstream(step string, err error) error {
	if errors.Is(err, ErrNotImplemented) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, step, err)
}
