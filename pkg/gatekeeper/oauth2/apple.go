package oauth2

import (
	"context"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	xoauth2 "golang.org/x/oauth2"
)

var appleEndpoint = xoauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// AppleProvider builds Sign in with Apple URLs. Completing the login is not
// supported yet.
type AppleProvider struct {
	base
}

// NewAppleProvider creates the Apple provider.
func NewAppleProvider(cfg config.ProviderConfig) *AppleProvider {
	return &AppleProvider{base: newBase(models.ProviderApple, cfg, appleEndpoint, "name", "email")}
}

// TODO: implement the Apple code exchange, which needs a client secret JWT
// signed with the team's private key.
func (p *AppleProvider) Exchange(ctx context.Context, code string) (*xoauth2.Token, error) {
	return nil, ErrNotImplemented
}

func (p *AppleProvider) FetchProfile(ctx context.Context, token *xoauth2.Token) (*Profile, error) {
	return nil, ErrNotImplemented
}
