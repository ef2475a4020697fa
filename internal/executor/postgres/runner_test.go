package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/shipquery/shipquery/internal/executor"
)

func TestRunReturnsNormalizedRows(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := NewRunner(db)
	deployedAt := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT app_name, deploy_env, date FROM deployment_data`)).
		WillReturnRows(sqlmock.NewRows([]string{"app_name", "deploy_env", "date"}).
			AddRow([]byte("frontend"), "PROD", deployedAt))

	result, err := runner.Run(context.Background(), "SELECT app_name, deploy_env, date FROM deployment_data")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if len(result.Columns) != 3 || result.Columns[0] != "app_name" {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if result.Rows[0][0] != "frontend" {
		t.Fatalf("Rows[0][0] = %#v, want string", result.Rows[0][0])
	}
	assertSQLMock(t, mock)
}

func TestRunWrapsFailuresAsExecutionError(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := NewRunner(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nope FROM deployment_data`)).
		WillReturnError(errors.New(`column "nope" does not exist`))

	_, err := runner.Run(context.Background(), "SELECT nope FROM deployment_data")
	var execErr *executor.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
