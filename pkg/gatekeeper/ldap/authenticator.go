// Package ldap authenticates users against an LDAP directory and maps
// directory entries to local user records.
package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

var (
	errEmptyCredentials = errors.New("empty username or password")
	errNoEntry          = errors.New("no directory entry matches")
	errAmbiguousEntry   = errors.New("more than one directory entry matches")
	errNoEmail          = errors.New("directory entry has no email")
)

// stepError records which step of an attempt failed.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(step string, err error) error {
	return &stepError{step: step, err: err}
}

// Authenticator verifies credentials with a directory bind and resolves the
// directory identity to a local user.
type Authenticator struct {
	cfg      config.LDAPConfig
	dialer   Dialer
	resolver *Resolver
	logger   zerolog.Logger
}

// NewAuthenticator creates a directory authenticator.
func NewAuthenticator(cfg config.LDAPConfig, dialer Dialer, resolver *Resolver, logger zerolog.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, dialer: dialer, resolver: resolver, logger: logger}
}

// Authenticate returns the local user for the directory account, or nil if
// any step fails. Failures are logged and never returned.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (user *models.User) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("username", username).Msg("ldap authentication panicked")
			user = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	user, err := a.authenticate(ctx, username, password)
	if err != nil {
		event := a.logger.Warn().Err(err).Str("username", username)
		var se *stepError
		if errors.As(err, &se) {
			event = event.Str("step", se.step)
		}
		event.Msg("ldap authentication failed")
		return nil
	}
	return user
}

func (a *Authenticator) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	// An empty password would turn the user bind into an unauthenticated bind.
	if username == "" || password == "" {
		return nil, fail("input", errEmptyCredentials)
	}

	entry, err := a.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := a.verify(ctx, entry.DN, password); err != nil {
		return nil, err
	}

	identity, err := a.identity(entry, username)
	if err != nil {
		return nil, err
	}

	user, err := a.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, fail("resolve", err)
	}
	return user, nil
}

// lookup binds with the service account and finds the single entry for
// username.
func (a *Authenticator) lookup(ctx context.Context, username string) (*goldap.Entry, error) {
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return nil, fail("connect", err)
	}
	defer conn.Close()

	if a.cfg.BindDN != "" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			return nil, fail("service_bind", err)
		}
	}

	result, err := conn.Search(a.searchRequest(username))
	if err != nil {
		return nil, fail("search", err)
	}
	switch len(result.Entries) {
	case 0:
		return nil, fail("search", errNoEntry)
	case 1:
		return result.Entries[0], nil
	default:
		return nil, fail("search", errAmbiguousEntry)
	}
}

// verify binds as the entry itself. A successful bind is the password check.
func (a *Authenticator) verify(ctx context.Context, dn, password string) error {
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return fail("connect", err)
	}
	defer conn.Close()

	if err := conn.Bind(dn, password); err != nil {
		return fail("user_bind", err)
	}
	return nil
}

func (a *Authenticator) identity(entry *goldap.Entry, username string) (Identity, error) {
	email := FirstValue(entry, a.cfg.EmailAttribute)
	if email == "" {
		return Identity{}, fail("attributes", errNoEmail)
	}

	fullName := FirstValue(entry, a.cfg.CommonNameAttribute)
	if fullName == "" {
		fullName = strings.TrimSpace(FirstValue(entry, a.cfg.FirstNameAttribute) + " " + FirstValue(entry, a.cfg.LastNameAttribute))
	}
	if fullName == "" {
		fullName = username
	}

	return Identity{Username: username, Email: email, FullName: fullName}, nil
}

func (a *Authenticator) searchRequest(username string) *goldap.SearchRequest {
	filter := strings.ReplaceAll(a.cfg.SearchFilter, "{username}", goldap.EscapeFilter(username))
	timeLimit := int(a.cfg.Timeout / time.Second)
	if timeLimit < 1 {
		timeLimit = 1
	}

	return goldap.NewSearchRequest(
		a.cfg.SearchBase,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		2,
		timeLimit,
		false,
		filter,
		[]string{
			"dn",
			a.cfg.EmailAttribute,
			a.cfg.FirstNameAttribute,
			a.cfg.LastNameAttribute,
			a.cfg.CommonNameAttribute,
		},
		nil,
	)
}

// FirstValue returns the first non-empty value of attribute, trimmed, or ""
// when the entry lacks it.
func FirstValue(entry *goldap.Entry, attribute string) string {
	if entry == nil || attribute == "" {
		return ""
	}
	for _, value := range entry.GetAttributeValues(attribute) {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}

// String describes the authenticator for startup logs.
func (a *Authenticator) String() string {
	return fmt.Sprintf("ldap(base=%s strategy=%s)", a.cfg.SearchBase, a.cfg.ConflictStrategy)
}
