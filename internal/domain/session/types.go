// Package session manages auth provider sessions.
package session

import (
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
)

// Session is a signed-in browser or client.
type Session struct {
	// ID is a ULID used in logs and admin views. It is never a credential.
	ID string `json:"id"`
	// Token is the cookie credential: 32 random bytes, hex-encoded.
	Token string `json:"token"`
	// UserID references the auth.User this session belongs to.
	UserID string `json:"userId"`
	// ExpiresAt is when the session will expire (UTC).
	ExpiresAt time.Time `json:"expiresAt"`
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the expiry was last extended (UTC).
	UpdatedAt time.Time `json:"updatedAt"`
	// IPAddress is the client address at sign-in.
	IPAddress string `json:"ipAddress,omitempty"`
	// UserAgent is the User-Agent header at sign-in.
	UserAgent string `json:"userAgent,omitempty"`
}

// IsExpired checks if the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return !time.Now().UTC().Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the session was last extended at least
// updateAge ago. A zero updateAge disables sliding expiry.
func (s *Session) NeedsRefresh(updateAge time.Duration) bool {
	if updateAge <= 0 {
		return false
	}
	return time.Since(s.UpdatedAt) >= updateAge
}

// Refresh updates UpdatedAt and extends ExpiresAt by the given duration.
func (s *Session) Refresh(expiresIn time.Duration) {
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(expiresIn)
}

// Metadata describes the client creating a session.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Info is a live session together with its user. Both are non-nil when
// the Info itself is non-nil.
type Info struct {
	Session *Session   `json:"session"`
	User    *auth.User `json:"user"`
}
