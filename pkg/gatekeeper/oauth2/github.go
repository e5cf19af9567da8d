package oauth2

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v74/github"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider signs users in with GitHub.
type GitHubProvider struct {
	base
	// apiBase overrides the REST API root when set.
	apiBase string
}

// NewGitHubProvider creates the GitHub provider.
func NewGitHubProvider(cfg config.ProviderConfig) *GitHubProvider {
	return &GitHubProvider{
		base: newBase(models.ProviderGitHub, cfg, github.Endpoint, "user:email"),
	}
}

// FetchProfile reads /user and, when the profile hides the address,
// /user/emails.
func (p *GitHubProvider) FetchProfile(ctx context.Context, token *xoauth2.Token) (*Profile, error) {
	client, err := p.client(ctx, token)
	if err != nil {
		return nil, err
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("github /user: %w", err)
	}

	email := user.GetEmail()
	if email == "" {
		emails, _, err := client.Users.ListEmails(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("github /user/emails: %w", err)
		}
		email = selectEmail(emails)
	}

	name := user.GetName()
	if name == "" {
		name = user.GetLogin()
	}

	return &Profile{
		ProviderUserID: strconv.FormatInt(user.GetID(), 10),
		Email:          email,
		Name:           name,
		Picture:        user.GetAvatarURL(),
	}, nil
}

func (p *GitHubProvider) client(ctx context.Context, token *xoauth2.Token) (*gogithub.Client, error) {
	client := gogithub.NewClient(p.config.Client(ctx, token))
	if p.apiBase != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(p.apiBase, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github api base: %w", err)
		}
		client.BaseURL = baseURL
	}
	return client, nil
}

// selectEmail prefers the primary verified address and falls back to the
// first one listed.
func selectEmail(emails []*gogithub.UserEmail) string {
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			return e.GetEmail()
		}
	}
	if len(emails) > 0 {
		return emails[0].GetEmail()
	}
	return ""
}
