// Package config loads the server configuration from environment variables.
//
// The configuration is parsed once at startup and handed to every component
// by pointer. Nothing in the request path mutates it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// LDAP conflict strategies
const (
	ConflictFail      = "fail"
	ConflictCreateNew = "create_new"
)

// Config holds runtime settings for the server.
type Config struct {
	ProjectName string `env:"PROJECT_NAME" envDefault:"Gatekeeper"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"gatekeeper.db"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173" validate:"url"`

	// SecretKey signs every token the server issues. The default is for
	// development only.
	SecretKey      string        `env:"SECRET_KEY" envDefault:"gatekeeper-dev-secret-change-in-production" validate:"min=32"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"192h" validate:"gt=0"`
	ResetTokenTTL  time.Duration `env:"RESET_TOKEN_TTL" envDefault:"48h" validate:"gt=0"`
	OAuth2StateTTL time.Duration `env:"OAUTH2_STATE_TTL" envDefault:"10m" validate:"gt=0"`

	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"bcrypt" validate:"oneof=bcrypt argon2id"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`

	FirstSuperuser         string `env:"FIRST_SUPERUSER" envDefault:"admin@example.com" validate:"omitempty,email"`
	FirstSuperuserPassword string `env:"FIRST_SUPERUSER_PASSWORD"`

	LDAP   LDAPConfig     `envPrefix:"LDAP_"`
	OAuth2 OAuth2Config   `envPrefix:"OAUTH2_"`
	Google ProviderConfig `envPrefix:"GOOGLE_"`
	GitHub ProviderConfig `envPrefix:"GITHUB_"`
	Apple  ProviderConfig `envPrefix:"APPLE_"`
	SMTP   SMTPConfig     `envPrefix:"SMTP_"`
}

// LDAPConfig configures the directory authenticator.
type LDAPConfig struct {
	Enabled            bool   `env:"ENABLED" envDefault:"false"`
	Server             string `env:"SERVER" validate:"required_if=Enabled true"`
	Port               int    `env:"PORT" envDefault:"389" validate:"gt=0,lte=65535"`
	UseTLS             bool   `env:"USE_TLS" envDefault:"false"`
	StartTLS           bool   `env:"START_TLS" envDefault:"false"`
	InsecureSkipVerify bool   `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`

	// BindDN and BindPassword are the service credentials used for the
	// search. Leave BindDN empty for an anonymous search.
	BindDN       string `env:"BIND_DN"`
	BindPassword string `env:"BIND_PASSWORD"`

	SearchBase   string `env:"SEARCH_BASE" validate:"required_if=Enabled true"`
	SearchFilter string `env:"SEARCH_FILTER" envDefault:"(uid={username})"`

	EmailAttribute      string `env:"ATTR_EMAIL" envDefault:"mail"`
	FirstNameAttribute  string `env:"ATTR_FIRST_NAME" envDefault:"givenName"`
	LastNameAttribute   string `env:"ATTR_LAST_NAME" envDefault:"sn"`
	CommonNameAttribute string `env:"ATTR_COMMON_NAME" envDefault:"cn"`

	ConflictStrategy string        `env:"CONFLICT_STRATEGY" envDefault:"fail" validate:"oneof=fail create_new"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// OAuth2Config holds settings shared by all OAuth2 providers.
type OAuth2Config struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// ProviderConfig holds the client credentials of one OAuth2 provider.
type ProviderConfig struct {
	Enabled      bool   `env:"OAUTH_ENABLED" envDefault:"false"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI" validate:"omitempty,url"`
}

// Configured reports whether client credentials are present.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// SMTPConfig holds SMTP configuration for sending emails.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" validate:"omitempty,email"`
	SSL      bool   `env:"SSL" envDefault:"false"`
}

// Enabled reports whether outgoing email is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints declared in the validate tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
