package auth

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lower-case ULID for users, accounts and sessions.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return strings.ToLower(id.String()), nil
}

// IsValidID reports whether id is a ULID produced by NewID.
func IsValidID(id string) bool {
	if len(id) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}
