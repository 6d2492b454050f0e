package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
)

// userTable is quoted because user is reserved in PostgreSQL.
const userTable = `"user"`

// userColumns lists columns returned by user SELECT queries.
var userColumns = []string{"id", "name", "email", "email_verified", "image", "role", "created_at", "updated_at"}

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// UserStore implements auth.UserStore.
type UserStore struct {
	db      *sql.DB
	sb      sq.StatementBuilderType
	dialect Dialect
}

// CreateUser inserts the user and its credential account in one transaction.
func (s *UserStore) CreateUser(ctx context.Context, user *auth.User, account *auth.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var role *string
	if user.Role != nil {
		r := string(*user.Role)
		role = &r
	}

	query, args, err := s.sb.Insert(userTable).
		Columns(userColumns...).
		Values(user.ID, user.Name, user.Email, user.EmailVerified, user.Image, role, user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	if account != nil {
		query, args, err = s.sb.Insert("account").
			Columns("id", "user_id", "provider_id", "password", "created_at", "updated_at").
			Values(account.ID, account.UserID, account.ProviderID, account.PasswordHash, account.CreatedAt, account.UpdatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("building account insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting account: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

// GetUserByEmail retrieves a user by email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, sq.Eq{"email": email})
}

func (s *UserStore) getUser(ctx context.Context, where sq.Eq) (*auth.User, error) {
	query, args, err := s.sb.Select(userColumns...).From(userTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var (
		u    auth.User
		role sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if role.Valid && role.String != "" {
		r := auth.Role(role.String)
		u.Role = &r
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// GetCredentialAccount retrieves the credential account of a user.
func (s *UserStore) GetCredentialAccount(ctx context.Context, userID string) (*auth.Account, error) {
	query, args, err := s.sb.Select("id", "user_id", "provider_id", "password", "created_at", "updated_at").
		From("account").
		Where(sq.Eq{"user_id": userID, "provider_id": auth.ProviderCredential}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building account query: %w", err)
	}

	var (
		a        auth.Account
		password sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.UserID, &a.ProviderID, &password, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	a.PasswordHash = password.String
	return &a, nil
}

// MarkEmailVerified sets email_verified on a user.
func (s *UserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	query, args, err := s.sb.Update(userTable).
		Set("email_verified", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("verifying user email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of registered users.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From(userTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building user count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a unique constraint failure in
// either dialect.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Compile-time interface verification.
var _ auth.UserStore = (*UserStore)(nil)
