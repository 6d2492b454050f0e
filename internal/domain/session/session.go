package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
)

// Default lifetimes.
const (
	DefaultExpiresIn = 7 * 24 * time.Hour
	DefaultUpdateAge = 24 * time.Hour
)

// Config holds session service configuration.
type Config struct {
	// ExpiresIn is the session lifetime. Default: 7 days.
	ExpiresIn time.Duration
	// UpdateAge is how old the last extension must be before use extends
	// the session again. Default: 1 day.
	UpdateAge time.Duration
}

// SessionService manages session lifecycle.
type SessionService struct {
	store     SessionStore
	expiresIn time.Duration
	updateAge time.Duration
}

// NewSessionService creates a new SessionService with the given store and config.
func NewSessionService(store SessionStore, cfg Config) *SessionService {
	expiresIn := cfg.ExpiresIn
	if expiresIn == 0 {
		expiresIn = DefaultExpiresIn
	}
	updateAge := cfg.UpdateAge
	if updateAge == 0 {
		updateAge = DefaultUpdateAge
	}
	return &SessionService{
		store:     store,
		expiresIn: expiresIn,
		updateAge: updateAge,
	}
}

// ExpiresIn returns the configured session lifetime.
func (s *SessionService) ExpiresIn() time.Duration {
	return s.expiresIn
}

// Create starts a new session for user.
func (s *SessionService) Create(ctx context.Context, user *auth.User, meta Metadata) (*Session, error) {
	token, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	id, err := auth.NewID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.expiresIn),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Get retrieves a live session by token, extending it when it is older
// than the update age. Expired sessions are deleted and reported as
// ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, token string) (*Session, error) {
	session, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		_ = s.store.Delete(ctx, token)
		return nil, ErrSessionNotFound
	}

	if session.NeedsRefresh(s.updateAge) {
		session.Refresh(s.expiresIn)
		if err := s.store.Update(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
	}

	return session, nil
}

// Delete terminates a session.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	return s.store.Delete(ctx, token)
}

// Sweep removes expired sessions.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return n, nil
}

// GenerateSessionID creates a cryptographically random session token.
// Returns 64 hex characters (32 bytes).
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
