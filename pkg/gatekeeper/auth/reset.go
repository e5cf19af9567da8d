package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/mailer"
	"github.com/rs/zerolog"
)

const mailSendTimeout = 30 * time.Second

// ResetService issues and redeems password reset tokens.
//
// Reset tokens are stateless: a token stays valid until it expires, even
// after it has been redeemed.
type ResetService struct {
	store       database.UserStore
	tokens      *TokenService
	hasher      *PasswordHasher
	sender      mailer.Sender
	ttl         time.Duration
	projectName string
	frontendURL string
	logger      zerolog.Logger

	pending sync.WaitGroup
}

// ResetConfig holds the settings of the reset flow.
type ResetConfig struct {
	TTL         time.Duration
	ProjectName string
	FrontendURL string
}

// NewResetService creates a reset service.
func NewResetService(store database.UserStore, tokens *TokenService, hasher *PasswordHasher, sender mailer.Sender, cfg ResetConfig, logger zerolog.Logger) *ResetService {
	return &ResetService{
		store:       store,
		tokens:      tokens,
		hasher:      hasher,
		sender:      sender,
		ttl:         cfg.TTL,
		projectName: cfg.ProjectName,
		frontendURL: cfg.FrontendURL,
		logger:      logger,
	}
}

// RequestReset emails a reset link to the user with this address. It returns
// ErrUserNotFound when no such user exists. Delivery happens in the
// background and failures are only logged.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	msg, err := s.GenerateResetEmail(ctx, email)
	if err != nil {
		return err
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := s.sender.Send(sendCtx, email, msg.Subject, msg.HTML); err != nil {
			s.logger.Error().Err(err).Str("email", email).Msg("failed to send password recovery email")
		}
	}()
	return nil
}

// GenerateResetEmail issues a reset token for email and renders the
// recovery message without sending it.
func (s *ResetService) GenerateResetEmail(ctx context.Context, email string) (mailer.Email, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return mailer.Email{}, ErrUserNotFound
	}
	if err != nil {
		return mailer.Email{}, err
	}

	token, err := s.tokens.Issue(user.Email, s.ttl, PurposePasswordReset)
	if err != nil {
		return mailer.Email{}, err
	}

	return mailer.RenderResetPassword(mailer.ResetPasswordData{
		ProjectName: s.projectName,
		Email:       user.Email,
		Link:        s.resetLink(token),
		ValidHours:  validHours(s.ttl),
	})
}

// RedeemReset sets a new password for the user named by the reset token.
// It returns ErrInvalidToken, ErrUserNotFound or ErrInactiveUser.
func (s *ResetService) RedeemReset(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(token, PurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := s.store.GetByEmail(ctx, claims.Subject)
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return ErrInactiveUser
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, user.ID, database.UpdateParams{HashedPassword: &hashed})
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Wait blocks until queued emails have been handed to the sender.
func (s *ResetService) Wait() {
	s.pending.Wait()
}

// validHours rounds ttl up to whole hours, with a minimum of one.
func validHours(ttl time.Duration) int {
	hours := int((ttl + time.Hour - 1) / time.Hour)
	if hours < 1 {
		return 1
	}
	return hours
}

func (s *ResetService) resetLink(token string) string {
	return s.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}
