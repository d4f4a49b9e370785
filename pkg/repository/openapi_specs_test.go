package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
)

var columns = []string{"id", "name", "title", "version", "spec_content", "file_format", "api_key_token", "is_active", "created_at", "updated_at"}

func newMock(t *testing.T) (*OpenAPISpecRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOpenAPISpecRepository(db), mock
}

func TestGetByName(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM openapi_specs WHERE name = $1")).
		WithArgs("tasks").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "tasks", "Tasks API", "1.0", `{"openapi":"3.0.0"}`, "json", nil, true, now, now))

	got, err := repo.GetByName(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
	assert.Equal(t, "tasks", got.Name)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Tasks API", *got.Title)
	assert.Nil(t, got.ApiKeyToken)
	assert.True(t, got.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByNameNotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM openapi_specs WHERE name = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.GetByName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSpecNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO openapi_specs")).
		WithArgs("tasks", sqlmock.AnyArg(), sqlmock.AnyArg(), "{}", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	created, err := repo.Create(context.Background(), models.NewOpenAPISpec("tasks", "{}", "json"))
	require.NoError(t, err)
	assert.Equal(t, 7, created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActive(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = true")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, "b", nil, nil, "{}", "json", "tok", true, now, now).
			AddRow(1, "a", nil, nil, "{}", "yaml", nil, true, now, now))

	specs, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "b", specs[0].Name)
	assert.Equal(t, "tok", specs[0].Token())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRow(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM openapi_specs WHERE id = $1")).
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 9)
	assert.ErrorIs(t, err, ErrSpecNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetActive(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE openapi_specs SET is_active = $2")).
		WithArgs(3, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetActive(context.Background(), 3, false))
	require.NoError(t, mock.ExpectationsWereMet())
}
