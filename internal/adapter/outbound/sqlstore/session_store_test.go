package sqlstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltigdev/voltig-turbo/internal/domain/session"
)

func TestSessionStore_GetByToken(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM session WHERE token = $1")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("s1", "tok", "u1", now.Add(time.Hour), nil, "curl/8", now, now))

	sess, err := d.Sessions().GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, "", sess.IPAddress)
	assert.Equal(t, "curl/8", sess.UserAgent)
}

func TestSessionStore_GetByToken_NotFound(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := d.Sessions().GetByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionStore_Update_NotFound(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE session SET expires_at = $1, updated_at = $2 WHERE token = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.Sessions().Update(context.Background(), &session.Session{Token: "gone"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session WHERE expires_at <= $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := d.Sessions().DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
