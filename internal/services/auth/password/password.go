// Package password hashes and verifies account passwords.
//
// Verification always performs one bcrypt comparison, including for accounts
// without a stored hash, so unknown identifiers and wrong passwords cost the
// same.
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"unicode/utf8"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinLength is the minimum password length in characters.
	MinLength = 8
	// MaxBytes is the bcrypt input limit.
	MaxBytes = 72
)

// ErrWeakPassword indicates a password outside the accepted length bounds.
var ErrWeakPassword = apperrors.New(apperrors.CodeUserWeakPassword, "password must be 8-72 bytes long")

// Hasher hashes raw passwords and verifies them against stored hashes.
type Hasher interface {
	Hash(raw string) (string, error)
	// Verify reports whether raw matches encoded. An empty encoded hash never
	// matches but still costs a full comparison.
	Verify(raw, encoded string) (bool, error)
}

// Bcrypt implements Hasher with bcrypt.
type Bcrypt struct {
	cost  int
	dummy []byte
}

// NewBcrypt returns a bcrypt hasher using cost. Costs outside bcrypt's range
// fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read dummy seed: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &Bcrypt{cost: cost, dummy: dummy}, nil
}

// Hash returns the bcrypt encoding of raw.
func (b *Bcrypt) Hash(raw string) (string, error) {
	if err := ValidatePolicy(raw); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares raw with encoded in constant time.
func (b *Bcrypt) Verify(raw, encoded string) (bool, error) {
	if encoded == "" {
		_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(raw))
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password hash: %w", err)
	}
}

// ValidatePolicy checks the length bounds for a new password.
func ValidatePolicy(raw string) error {
	if utf8.RuneCountInString(raw) < MinLength || len(raw) > MaxBytes {
		return ErrWeakPassword
	}
	return nil
}
