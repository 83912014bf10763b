package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt reads at most 72 bytes of input; longer passwords are rejected
// rather than silently truncated.
const bcryptMaxPasswordBytes = 72

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func bcryptCost(encodedHash string) (int, error) {
	return bcrypt.Cost([]byte(encodedHash))
}

func (c Config) hashBcrypt(password string) (string, error) {
	if len(password) > bcryptMaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), c.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c Config) verifyBcrypt(encodedHash, password string) (bool, error) {
	cost, err := bcryptCost(encodedHash)
	if err != nil {
		return false, ErrInvalidHash
	}
	// Same anti-DoS rule as argon2id: a stored cost far above ours is refused.
	if cost > c.BcryptCost+2 && cost > bcrypt.DefaultCost+2 {
		return false, ErrInvalidHash
	}
	if len(password) > bcryptMaxPasswordBytes {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}
