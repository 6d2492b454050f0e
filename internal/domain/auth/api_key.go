package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// Hash types reported by DetectHashType.
const (
	HashTypeArgon2id = "argon2id"
	HashTypeSHA256   = "sha256"
	HashTypePlain    = "plain"
)

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 46 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies how a configured API secret is stored.
// "$argon2id$..." is an Argon2id PHC string and "sha256:<hex>" a SHA-256
// digest. Anything else is the secret itself; a bare 64 character hex value
// is treated as a plain secret since `openssl rand -hex 32` produces one.
func DetectHashType(stored string) string {
	if strings.HasPrefix(stored, "$argon2id$") {
		return HashTypeArgon2id
	}
	if strings.HasPrefix(stored, "sha256:") {
		return HashTypeSHA256
	}
	return HashTypePlain
}

// VerifyKey verifies a presented key against the configured value.
// Returns (true, nil) if match, (false, nil) if no match, and an error
// only for malformed Argon2id hashes. All comparisons are constant time.
func VerifyKey(rawKey, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case HashTypeArgon2id:
		return safeArgon2idCompare(rawKey, stored)

	case HashTypeSHA256:
		expected := strings.ToLower(strings.TrimPrefix(stored, "sha256:"))
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		// Compare digests so the comparison time does not depend on the secret length.
		a := sha256.Sum256([]byte(rawKey))
		b := sha256.Sum256([]byte(stored))
		return subtle.ConstantTimeCompare(a[:], b[:]) == 1, nil
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed Argon2id hashes with invalid
// parameters (e.g., t=0 rounds, p=0 parallelism).
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
