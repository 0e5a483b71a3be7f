package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var tokenColumns = []string{"id", "user_id", "token_hash", "lookup_key", "created_at", "expires_at", "revoked"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rt := &models.RefreshToken{
		ID: "r1", UserID: "u1", TokenHash: "$argon2id$h", LookupKey: "lk",
		CreatedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour),
	}

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(id,\s*user_id,\s*token_hash,\s*lookup_key,\s*created_at,\s*expires_at,\s*revoked\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*FALSE\)\s*$`
	mock.ExpectExec(q).
		WithArgs("r1", "u1", "$argon2id$h", "lk", rt.CreatedAt, rt.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), rt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.RefreshToken{ID: "r1"})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindActiveByLookup(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)FROM\s+refresh_tokens\s+WHERE\s+lookup_key\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$2`
	mock.ExpectQuery(q).
		WithArgs("lk", now).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow("r1", "u1", "h1", "lk", now.Add(-time.Hour), now.Add(time.Hour), false).
			AddRow("r2", "u2", "h2", "lk", now.Add(-time.Minute), now.Add(time.Hour), false))

	got, err := repo.FindActiveByLookup(context.Background(), "lk", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "u2", got[1].UserID)
}

func TestFindActiveByLookup_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+refresh_tokens`).WillReturnRows(sqlmock.NewRows(tokenColumns))

	got, err := repo.FindActiveByLookup(context.Background(), "nope", time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindActiveByLookup_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+refresh_tokens`).WillReturnError(errors.New("db err"))

	_, err := repo.FindActiveByLookup(context.Background(), "lk", time.Now())
	assert.EqualError(t, err, "db error: db err")
}

func TestDeleteStaleForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+\(revoked\s*=\s*TRUE\s+OR\s+expires_at\s*<=\s*\$2\)`
	mock.ExpectExec(q).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteStaleForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestCountActiveForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)SELECT\s+COUNT\(\*\)\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$2`
	mock.ExpectQuery(q).WithArgs("u1", now).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := repo.CountActiveForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestDeleteOldestActiveForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\(.*ORDER\s+BY\s+created_at\s+ASC.*LIMIT\s+1\s*\)`
	mock.ExpectExec(q).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.DeleteOldestActiveForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMarkRevoked(t *testing.T) {
	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`

	t.Run("winner", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkRevoked(context.Background(), "r1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("already revoked", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkRevoked(context.Background(), "r1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("r1").WillReturnError(errors.New("db err"))

		ok, err := repo.MarkRevoked(context.Background(), "r1")
		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestRevokeAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`
	mock.ExpectExec(q).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RevokeAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestDeleteRevokedOrExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+revoked\s*=\s*TRUE\s+OR\s+expires_at\s*<=\s*\$1`
	mock.ExpectExec(q).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteRevokedOrExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
}

func TestDeleteRevokedOrExpired_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens`).WillReturnError(errors.New("db err"))

	_, err := repo.DeleteRevokedOrExpired(context.Background(), time.Now())
	assert.EqualError(t, err, "db error: db err")
}
