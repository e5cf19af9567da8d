// Package oauth2 implements login through external OAuth2 providers.
package oauth2

import (
	"context"
	"errors"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	xoauth2 "golang.org/x/oauth2"
)

var (
	ErrUnsupportedProvider   = errors.New("unsupported OAuth2 provider")
	ErrProviderNotConfigured = errors.New("OAuth2 provider is not configured")
	ErrNotImplemented        = errors.New("OAuth2 provider is not implemented")
	ErrInvalidState          = errors.New("invalid OAuth2 state")
	ErrMissingCode           = errors.New("missing authorization code")
	ErrNoEmail               = errors.New("could not retrieve email from provider")
	ErrUpstream              = errors.New("OAuth2 provider request failed")
)

// Profile is the identity reported by a provider.
type Profile struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
}

// Provider is one OAuth2 identity provider.
type Provider interface {
	Name() string
	Enabled() bool
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*xoauth2.Token, error)
	FetchProfile(ctx context.Context, token *xoauth2.Token) (*Profile, error)
}

// NewProviders builds the provider registry from configuration.
func NewProviders(cfg *config.Config) map[string]Provider {
	return Registry(
		NewGoogleProvider(cfg.Google),
		NewGitHubProvider(cfg.GitHub),
		NewAppleProvider(cfg.Apple),
	)
}

// Registry indexes providers by name.
func Registry(providers ...Provider) map[string]Provider {
	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
	}
	return registry
}

// base holds what every provider shares.
type base struct {
	name   string
	cfg    config.ProviderConfig
	config *xoauth2.Config
}

func newBase(name string, cfg config.ProviderConfig, endpoint xoauth2.Endpoint, scopes ...string) base {
	return base{
		name: name,
		cfg:  cfg,
		config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}
}

func (b *base) Name() string     { return b.name }
func (b *base) Enabled() bool    { return b.cfg.Enabled }
func (b *base) Configured() bool { return b.cfg.Configured() }

func (b *base) AuthCodeURL(state string) string {
	return b.config.AuthCodeURL(state)
}

func (b *base) Exchange(ctx context.Context, code string) (*xoauth2.Token, error) {
	return b.config.Exchange(ctx, code)
}
