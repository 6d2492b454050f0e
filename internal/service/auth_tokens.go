package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
)

// Cookie names.
const (
	SessionTokenCookie = "voltig.session_token"
	SessionDataCookie  = "voltig.session_data"
)

// Token purposes, carried in the JWT subject-scoped "purpose" claim.
const (
	purposeVerifyEmail = "verify-email"
	purposeSessionData = "session-data"
)

// verificationTTL is how long an email verification link stays valid.
const verificationTTL = time.Hour

// errBadSignature is returned for cookies whose signature does not verify.
var errBadSignature = errors.New("bad cookie signature")

// signer signs cookie values and JWTs with the auth secret.
type signer struct {
	secret []byte
}

// signValue returns "value.signature" where signature is the base64url
// HMAC-SHA256 of value.
func (s signer) signValue(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verifyValue checks a value produced by signValue and returns the value.
func (s signer) verifyValue(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", errBadSignature
	}
	value := signed[:i]
	if !hmac.Equal([]byte(s.signValue(value)), []byte(signed)) {
		return "", errBadSignature
	}
	return value, nil
}

// verificationClaims is the payload of an email verification token.
type verificationClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// verificationToken issues a signed token proving control of email.
func (s signer) verificationToken(email string, now time.Time) (string, error) {
	claims := verificationClaims{
		Email:   email,
		Purpose: purposeVerifyEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(verificationTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing verification token: %w", err)
	}
	return signed, nil
}

// parseVerificationToken returns the email of a valid verification token.
// Expired tokens yield ErrTokenExpired; anything else invalid ErrInvalidToken.
func (s signer) parseVerificationToken(token string) (string, error) {
	var claims verificationClaims
	_, err := jwt.ParseWithClaims(token, &claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenExpired
	}
	if err != nil || claims.Purpose != purposeVerifyEmail || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}

// sessionDataClaims is the payload of the session cache cookie.
type sessionDataClaims struct {
	Session *session.Session `json:"session"`
	User    *auth.User       `json:"user"`
	Purpose string           `json:"purpose"`
	jwt.RegisteredClaims
}

// sessionDataToken caches info in a signed token valid for maxAge.
func (s signer) sessionDataToken(info *session.Info, now time.Time, maxAge time.Duration) (string, error) {
	claims := sessionDataClaims{
		Session: info.Session,
		User:    info.User,
		Purpose: purposeSessionData,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session data: %w", err)
	}
	return signed, nil
}

// parseSessionData returns the cached session if the token is valid and
// belongs to token.
func (s signer) parseSessionData(data, token string) (*session.Info, bool) {
	var claims sessionDataClaims
	_, err := jwt.ParseWithClaims(data, &claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())
	if err != nil || claims.Purpose != purposeSessionData || claims.Session == nil || claims.User == nil {
		return nil, false
	}
	if !hmac.Equal([]byte(claims.Session.Token), []byte(token)) || claims.Session.IsExpired() {
		return nil, false
	}
	return &session.Info{Session: claims.Session, User: claims.User}, true
}

func (s signer) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}
