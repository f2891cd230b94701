package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/docsync/internal/apperr"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	docCols  = []string{"id", "owner_id", "filename", "storage_location", "content_type", "created_at", "index_ref"}
)

func newMockStore(t *testing.T) (*MetadataStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewMetadataStore(db)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestCreateDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(sqlmock.AnyArg(), "U1", "report.pdf", "documents/U1/x/report.pdf", "application/pdf", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := store.Create(context.Background(), "U1", "report.pdf", "documents/U1/x/report.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "U1", rec.OwnerID)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	assert.False(t, rec.Indexed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOwner(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(docCols).
		AddRow("d2", "U1", "b.txt", "k2", "text/plain", fixedNow, nil).
		AddRow("d1", "U1", "a.txt", "k1", "text/plain", fixedNow.Add(-time.Hour), "v1")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("U1").
		WillReturnRows(rows)

	records, err := store.ListByOwner(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "d2", records[0].ID)
	assert.Empty(t, records[0].IndexRef)
	assert.Equal(t, "v1", records[1].IndexRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOwnerEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WithArgs("U2").WillReturnRows(sqlmock.NewRows(docCols))

	records, err := store.ListByOwner(context.Background(), "U2")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListUnindexed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("index_ref IS NULL")).
		WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(docCols).AddRow("d2", "U1", "b.txt", "k2", "text/plain", fixedNow, nil))

	records, err := store.ListUnindexed(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "d2", records[0].ID)
}

func TestFindByIDScopedToOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = ? AND owner_id = ?")).
		WithArgs("d1", "U2").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByID(context.Background(), "d1", "U2")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDDriverError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err := store.FindByID(context.Background(), "d1", "U1")
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestSetIndexRef(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET index_ref = ?")).
		WithArgs("v1", "d1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetIndexRef(context.Background(), "d1", "v1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIndexRefRepeatIsNoop(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE documents").
		WithArgs("v1", "d1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT index_ref FROM documents WHERE id = ?")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"index_ref"}).AddRow("v1"))

	require.NoError(t, store.SetIndexRef(context.Background(), "d1", "v1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIndexRefRefusesOverwrite(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE documents").
		WithArgs("v2", "d1", "v2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT index_ref").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"index_ref"}).AddRow("v1"))

	err := store.SetIndexRef(context.Background(), "d1", "v2")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestSetIndexRefMissingRecord(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT index_ref").WillReturnError(sql.ErrNoRows)

	err := store.SetIndexRef(context.Background(), "gone", "v1")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDeleteReturnsPriorRecord(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("d1", "U1").
		WillReturnRows(sqlmock.NewRows(docCols).AddRow("d1", "U1", "a.txt", "k1", "text/plain", fixedNow, "v1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = ? AND owner_id = ?")).
		WithArgs("d1", "U1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := store.Delete(context.Background(), "d1", "U1")
	require.NoError(t, err)
	assert.Equal(t, "v1", rec.IndexRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteForeignOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("d1", "U2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Delete(context.Background(), "d1", "U2")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := store.CreateUser(context.Background(), "Ann", "ann@example.com", "hash")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestFindUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = ?")).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}).
			AddRow("u1", "Ann", "ann@example.com", "hash", fixedNow))

	user, err := store.FindUserByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "hash", user.PasswordHash)

	mock.ExpectQuery("FROM users").WillReturnError(sql.ErrNoRows)
	_, err = store.FindUserByEmail(context.Background(), "nobody@example.com")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS documents")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
