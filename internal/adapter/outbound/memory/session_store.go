package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/session"
)

// Default cleanup interval for session expiration.
const DefaultCleanupInterval = 1 * time.Minute

// MemorySessionStore implements session.SessionStore with an in-memory map
// keyed by token. Thread-safe for concurrent access. For development/testing only.
// Background cleanup goroutine removes expired sessions periodically.
type MemorySessionStore struct {
	sessions        map[string]*session.Session
	mu              sync.RWMutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	cleanupInterval time.Duration
	once            sync.Once // Prevent double-close panic on Stop()
}

// NewSessionStore creates a new in-memory session store with default cleanup interval.
func NewSessionStore() *MemorySessionStore {
	return NewSessionStoreWithConfig(DefaultCleanupInterval)
}

// NewSessionStoreWithConfig creates a new in-memory session store with custom cleanup interval.
func NewSessionStoreWithConfig(cleanupInterval time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:        make(map[string]*session.Session),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// StartCleanup starts the background cleanup goroutine.
// The goroutine will periodically remove expired sessions.
// Call Stop() to stop the cleanup goroutine gracefully.
func (s *MemorySessionStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if n, _ := s.DeleteExpired(ctx); n > 0 {
					slog.Debug("cleaned expired sessions", "count", n)
				}
			}
		}
	}()
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *MemorySessionStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Create stores a new session.
func (s *MemorySessionStore) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	sessCopy := *sess
	s.sessions[sess.Token] = &sessCopy
	return nil
}

// GetByToken retrieves a session by token, expired or not.
// Returns session.ErrSessionNotFound if the session doesn't exist.
func (s *MemorySessionStore) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	sessCopy := *sess
	return &sessCopy, nil
}

// Update saves changes to an existing session.
func (s *MemorySessionStore) Update(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.Token]; !ok {
		return session.ErrSessionNotFound
	}
	sessCopy := *sess
	s.sessions[sess.Token] = &sessCopy
	return nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// DeleteExpired removes every expired session and returns how many were removed.
func (s *MemorySessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleaned int64
	for token, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, token)
			cleaned++
		}
	}
	return cleaned, nil
}

// CountActive returns the number of unexpired sessions.
func (s *MemorySessionStore) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		if !sess.IsExpired() {
			n++
		}
	}
	return n, nil
}

// Size returns the number of sessions currently stored.
// Useful for testing cleanup behavior.
func (s *MemorySessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Compile-time interface verification.
var _ session.SessionStore = (*MemorySessionStore)(nil)
