package auth

import (
	"errors"
	"strings"
	"sync"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms for new digests. Verification accepts either
// format regardless of the configured algorithm.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for passwords over MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher struct {
	algorithm string
	argon     argon2.Config

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordHasher creates a hasher producing digests with the given
// algorithm. Unknown algorithms fall back to bcrypt.
func NewPasswordHasher(algorithm string) *PasswordHasher {
	if algorithm != AlgorithmArgon2id {
		algorithm = AlgorithmBcrypt
	}
	return &PasswordHasher{algorithm: algorithm, argon: argon2.DefaultConfig()}
}

// Hash returns a salted digest of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if h.algorithm == AlgorithmArgon2id {
		encoded, err := h.argon.HashEncoded([]byte(password))
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether password matches digest. Malformed or unusable
// digests never verify.
func (h *PasswordHasher) Verify(password, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2"):
		ok, err := argon2.VerifyEncoded([]byte(password), []byte(digest))
		return err == nil && ok
	case strings.HasPrefix(digest, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	default:
		return false
	}
}

// VerifyDummy spends roughly the time of a real verification so that a
// missing account is not distinguishable by latency.
func (h *PasswordHasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		digest, err := h.Hash("gatekeeper-dummy-password")
		if err == nil {
			h.dummy = digest
		}
	})
	h.Verify(password, h.dummy)
}

var defaultHasher = NewPasswordHasher(AlgorithmBcrypt)

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	return defaultHasher.Verify(password, hash)
}
