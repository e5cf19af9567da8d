package oauth2

import (
	"context"
	"fmt"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleProvider signs users in with Google.
type GoogleProvider struct {
	base
	// apiEndpoint overrides the userinfo API base URL when set.
	apiEndpoint string
}

// NewGoogleProvider creates the Google provider.
func NewGoogleProvider(cfg config.ProviderConfig) *GoogleProvider {
	return &GoogleProvider{
		base: newBase(models.ProviderGoogle, cfg, google.Endpoint, "openid", "email", "profile"),
	}
}

// FetchProfile reads the Google userinfo endpoint.
func (p *GoogleProvider) FetchProfile(ctx context.Context, token *xoauth2.Token) (*Profile, error) {
	opts := []option.ClientOption{option.WithHTTPClient(p.config.Client(ctx, token))}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}

	service, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create userinfo client: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	return &Profile{
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
		Picture:        info.Picture,
	}, nil
}
