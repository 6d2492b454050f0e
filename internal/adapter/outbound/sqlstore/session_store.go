package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/voltigdev/voltig-turbo/internal/domain/session"
)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{"id", "token", "user_id", "expires_at", "ip_address", "user_agent", "created_at", "updated_at"}

// SessionStore implements session.SessionStore.
type SessionStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	query, args, err := s.sb.Insert("session").
		Columns(sessionColumns...).
		Values(sess.ID, sess.Token, sess.UserID, sess.ExpiresAt,
			nullString(sess.IPAddress), nullString(sess.UserAgent),
			sess.CreatedAt, sess.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetByToken retrieves a session by token, expired or not.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	query, args, err := s.sb.Select(sessionColumns...).From("session").
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	var (
		sess      session.Session
		ip, agent sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &ip, &agent, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.IPAddress = ip.String
	sess.UserAgent = agent.String
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	return &sess, nil
}

// Update saves the expiry of an existing session.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	query, args, err := s.sb.Update("session").
		Set("expires_at", sess.ExpiresAt).
		Set("updated_at", sess.UpdatedAt).
		Where(sq.Eq{"token": sess.Token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	query, args, err := s.sb.Delete("session").Where(sq.Eq{"token": token}).ToSql()
	if err != nil {
		return fmt.Errorf("building session delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes every expired session.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Delete("session").
		Where(sq.LtOrEq{"expires_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building session cleanup: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleaning up sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// CountActive returns the number of unexpired sessions.
func (s *SessionStore) CountActive(ctx context.Context) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("session").
		Where(sq.Gt{"expires_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building session count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Compile-time interface verification.
var _ session.SessionStore = (*SessionStore)(nil)
