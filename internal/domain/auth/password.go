package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var emailValidator = validator.New()

// Password policy errors.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrInvalidEmail     = errors.New("invalid email")
)

// PasswordPolicy bounds password length in characters.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy allows passwords of 8 to 20 characters.
var DefaultPasswordPolicy = PasswordPolicy{MinLength: 8, MaxLength: 20}

// Check returns ErrPasswordTooShort or ErrPasswordTooLong when password
// falls outside the policy.
func (p PasswordPolicy) Check(password string) error {
	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		return fmt.Errorf("%w: minimum is %d characters", ErrPasswordTooShort, p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("%w: maximum is %d characters", ErrPasswordTooLong, p.MaxLength)
	}
	return nil
}

// HashPassword returns an Argon2id PHC hash of password.
func HashPassword(password string) (string, error) {
	hash, err := HashKeyArgon2id(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches an Argon2id hash.
func VerifyPassword(password, hash string) (bool, error) {
	if DetectHashType(hash) != HashTypeArgon2id {
		return false, ErrUnknownHashType
	}
	return safeArgon2idCompare(password, hash)
}

// NormalizeEmail trims and lower-cases an address and checks it is a valid
// email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := emailValidator.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}
