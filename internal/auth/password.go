// Package auth hashes and checks the deletion passwords fragments are
// submitted with. There are no accounts: whoever knows a fragment's
// password may delete it.
//
// bcrypt embeds the salt and cost in its output, so the stored hash is all
// Verify needs:
//
//	$2a$12$<22-char salt><31-char hash>
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost takes a few hundred milliseconds on server hardware.
	DefaultCost = 12
	// MinPasswordLength keeps trivially guessable passwords out.
	MinPasswordLength = 4
	// MaxPasswordLength is bcrypt's input limit; longer input is truncated
	// silently by the algorithm, so it is rejected instead.
	MaxPasswordLength = 72
)

var (
	// ErrMismatch is returned by Verify when the password is wrong.
	ErrMismatch = errors.New("auth: password does not match")
	// ErrPasswordLength is returned by Hash for passwords outside the
	// allowed length.
	ErrPasswordLength = fmt.Errorf("auth: password must be %d to %d bytes", MinPasswordLength, MaxPasswordLength)
)

// Hasher hashes deletion passwords. The cost is a field so tests can use
// bcrypt.MinCost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher; a cost outside bcrypt's range means DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return "", ErrPasswordLength
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks password against hash in constant time. A wrong password is
// ErrMismatch; a malformed hash is any other error.
func (h *Hasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}
