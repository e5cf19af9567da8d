package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = fmt.Errorf("%w: token has expired", ErrInvalidToken)
)

// Purpose scopes a token to a single use. A token is only accepted by a
// verifier expecting the same purpose.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposePasswordReset Purpose = "password_reset"
	PurposeOAuth2State   Purpose = "oauth2_state"
)

// Claims represents the JWT claims
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies stateless HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret []byte, issuer string) *TokenService {
	return &TokenService{secret: secret, issuer: issuer, now: time.Now}
}

// Issue creates a signed token for subject that expires after ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration, purpose Purpose) (string, error) {
	token, _, err := s.IssueWithID(subject, ttl, purpose)
	return token, err
}

// IssueWithID is Issue that also returns the token's unique ID.
func (s *TokenService) IssueWithID(subject string, ttl time.Duration, purpose Purpose) (token, id string, err error) {
	now := s.now()
	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return token, claims.ID, nil
}

// Verify validates a token and returns its claims. The error is
// ErrExpiredToken for an expired token and ErrInvalidToken otherwise.
func (s *TokenService) Verify(tokenString string, purpose Purpose) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
