// Package mailer sends transactional emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a mailer from the SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	return &SMTPMailer{from: cfg.From, dialer: dialer}
}

// Send sends an HTML email. It gives up when ctx is done, although the
// SMTP conversation may still complete in the background.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("no recipients specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer writes emails to the log instead of sending them. It is used
// when SMTP is not configured.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the recipient and subject.
func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.Info().Str("to", to).Str("subject", subject).Int("body_bytes", len(htmlBody)).Msg("email not sent, smtp disabled")
	return nil
}

// New returns an SMTP mailer when SMTP is configured and a log mailer
// otherwise.
func New(cfg config.SMTPConfig, logger zerolog.Logger) Sender {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg)
	}
	return NewLogMailer(logger)
}

// Email is a rendered message.
type Email struct {
	Subject string
	HTML    string
}

// ResetPasswordData fills the password recovery template.
type ResetPasswordData struct {
	ProjectName string
	Email       string
	Link        string
	ValidHours  int
}

// NewAccountData fills the new account template.
type NewAccountData struct {
	ProjectName string
	Email       string
	Link        string
}

// RenderResetPassword renders the password recovery email.
func RenderResetPassword(data ResetPasswordData) (Email, error) {
	html, err := render("reset_password.html", data)
	if err != nil {
		return Email{}, err
	}
	return Email{
		Subject: fmt.Sprintf("%s - Password recovery for user %s", data.ProjectName, data.Email),
		HTML:    html,
	}, nil
}

// RenderNewAccount renders the welcome email sent when an administrator
// creates an account.
func RenderNewAccount(data NewAccountData) (Email, error) {
	html, err := render("new_account.html", data)
	if err != nil {
		return Email{}, err
	}
	return Email{
		Subject: fmt.Sprintf("%s - New account for user %s", data.ProjectName, data.Email),
		HTML:    html,
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
