package mailer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderResetPassword(t *testing.T) {
	email, err := RenderResetPassword(ResetPasswordData{
		ProjectName: "Gatekeeper",
		Email:       "user@example.com",
		Link:        "http://localhost:5173/reset-password?token=abc&x=1",
		ValidHours:  48,
	})
	require.NoError(t, err)

	assert.Equal(t, "Gatekeeper - Password recovery for user user@example.com", email.Subject)
	assert.Contains(t, email.HTML, "user@example.com")
	assert.Contains(t, email.HTML, "48 hours")
	assert.Contains(t, email.HTML, "token=abc&amp;x=1")
}

func TestRenderNewAccount(t *testing.T) {
	email, err := RenderNewAccount(NewAccountData{
		ProjectName: "Gatekeeper",
		Email:       "new@example.com",
		Link:        "http://localhost:5173",
	})
	require.NoError(t, err)

	assert.Equal(t, "Gatekeeper - New account for user new@example.com", email.Subject)
	assert.Contains(t, email.HTML, "new@example.com")
}

func TestRender_EscapesInput(t *testing.T) {
	email, err := RenderNewAccount(NewAccountData{ProjectName: "Gatekeeper", Email: "<script>@example.com"})
	require.NoError(t, err)
	assert.False(t, strings.Contains(email.HTML, "<script>"))
}

func TestNew_SelectsImplementation(t *testing.T) {
	logger := zerolog.Nop()

	_, isLog := New(config.SMTPConfig{}, logger).(*LogMailer)
	assert.True(t, isLog)

	_, isSMTP := New(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}, logger).(*SMTPMailer)
	assert.True(t, isSMTP)
}

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf))

	require.NoError(t, m.Send(context.Background(), "user@example.com", "Hello", "<p>hi</p>"))
	assert.Contains(t, buf.String(), `"to":"user@example.com"`)
	assert.Contains(t, buf.String(), `"subject":"Hello"`)
}

func TestSMTPMailer_NoRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	assert.Error(t, m.Send(context.Background(), "", "subject", "body"))
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	// Port 1 on localhost refuses or hangs; either way the call must return.
	m := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, m.Send(ctx, "user@example.com", "subject", "body"))
}
