package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

var (
	selectDocument = regexp.QuoteMeta(`SELECT collection, id, data, updated_at FROM documents WHERE collection = $1 AND id = $2`)
	upsertDocument = regexp.QuoteMeta(`INSERT INTO documents (collection, id, data, updated_at)`)
	deleteDocument = regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)
	documentCols   = []string{"collection", "id", "data", "updated_at"}
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewWithDB(sqlx.NewDb(db, "sqlmock"), Config{}, docstore.Config{Username: "alice"})
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return c, mock
}

func TestClient_Get(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectDocument).
		WithArgs("users", "1").
		WillReturnRows(sqlmock.NewRows(documentCols).AddRow("users", "1", []byte(`{"name":"Ada"}`), updated))

	doc, err := c.Get(ctx, "users", "1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, "Ada", doc.Data["name"])
	assert.Equal(t, updated, doc.UpdatedAt)

	mock.ExpectQuery(selectDocument).
		WithArgs("users", "2").
		WillReturnRows(sqlmock.NewRows(documentCols))

	_, err = c.Get(ctx, "users", "2")
	assert.Equal(t, docstore.CodeNotFound, docstore.CodeOf(err))
}

func TestClient_GetCorruptDocument(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(selectDocument).
		WithArgs("users", "1").
		WillReturnRows(sqlmock.NewRows(documentCols).AddRow("users", "1", []byte(`{broken`), time.Now()))

	_, err := c.Get(context.Background(), "users", "1")
	assert.Equal(t, docstore.CodeDataLoss, docstore.CodeOf(err))
}

func TestClient_SetAndDelete(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectExec(upsertDocument).
		WithArgs("users", "1", []byte(`{"name":"Ada"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, c.Set(ctx, "users", "1", map[string]any{"name": "Ada"}))

	// Offline reads come from the local cache without touching the database.
	require.NoError(t, c.DisableNetwork(ctx))
	doc, err := c.Get(ctx, "users", "1")
	require.NoError(t, err)
	assert.True(t, doc.FromCache)
	assert.ErrorIs(t, c.Set(ctx, "users", "1", nil), docstore.ErrOffline)

	require.NoError(t, c.EnableNetwork(ctx))

	mock.ExpectExec(deleteDocument).
		WithArgs("users", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, c.Delete(ctx, "users", "1"))
}

func TestClient_WriteErrors(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectExec(upsertDocument).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	err := c.Set(ctx, "users", "1", map[string]any{})
	assert.Equal(t, docstore.CodeAlreadyExists, docstore.CodeOf(err))

	mock.ExpectExec(deleteDocument).WillReturnError(&pq.Error{Code: "42501", Message: "permission denied"})
	err = c.Delete(ctx, "users", "1")
	assert.Equal(t, docstore.CodePermissionDenied, docstore.CodeOf(err))
}

func TestClient_DeliverRefetches(t *testing.T) {
	c, mock := newMockClient(t)

	var got []docstore.Document
	c.watchers[1] = watcher{key: watchKey("rooms", "a"), fn: func(d docstore.Document) { got = append(got, d) }}
	c.watchers[2] = watcher{key: watchKey("rooms", "b"), fn: func(docstore.Document) { t.Fatal("wrong document") }}

	mock.ExpectQuery(selectDocument).
		WithArgs("rooms", "a").
		WillReturnRows(sqlmock.NewRows(documentCols).AddRow("rooms", "a", []byte(`{"n":2}`), time.Now()))

	c.deliver(changeNotification{Collection: "rooms", ID: "a", Exists: true})
	c.deliver(changeNotification{Collection: "rooms", ID: "a", Exists: false})

	require.Len(t, got, 2)
	assert.Equal(t, float64(2), got[0].Data["n"])
	assert.False(t, got[1].Exists)
	assert.Equal(t, 2, c.WatcherCount())
}

func TestClient_Terminate(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectClose()
	require.NoError(t, c.Terminate(ctx))
	require.NoError(t, c.Terminate(ctx))
	assert.Zero(t, c.WatcherCount())

	_, err := c.AuthState(ctx)
	assert.ErrorIs(t, err, docstore.ErrTerminated)
}

func TestCodeForSQLState(t *testing.T) {
	tests := map[string]string{
		"23505": docstore.CodeAlreadyExists,
		"23503": docstore.CodeFailedPrecondition,
		"42501": docstore.CodePermissionDenied,
		"57P01": docstore.CodeUnavailable,
		"08006": docstore.CodeUnavailable,
		"22P02": docstore.CodeInvalidArgument,
		"28P01": docstore.CodeUnauthenticated,
		"53300": docstore.CodeResourceExhausted,
		"40001": docstore.CodeAborted,
		"XX001": docstore.CodeDataLoss,
		"42601": docstore.CodeInternal,
		"":      docstore.CodeInternal,
	}
	for state, want := range tests {
		assert.Equal(t, want, CodeForSQLState(state), state)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{sql.ErrNoRows, docstore.CodeNotFound},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), docstore.CodeDeadlineExceeded},
		{context.Canceled, docstore.CodeCancelled},
		{driver.ErrBadConn, docstore.CodeUnavailable},
		{sql.ErrConnDone, docstore.CodeFailedPrecondition},
		{errors.New("mystery"), docstore.CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, docstore.CodeOf(mapError(tt.err)), "%v", tt.err)
	}
}
