package postgres

import (
	"context"
	"reflect"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestFetchAppsUnionsBusinessTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT app_name FROM "deployment_data" WHERE app_name IS NOT NULL UNION SELECT DISTINCT app_name FROM "test_data" WHERE app_name IS NOT NULL ORDER BY app_name LIMIT 200`)).
		WillReturnRows(sqlmock.NewRows([]string{"app_name"}).
			AddRow("api-gateway").
			AddRow("frontend"))

	source := NewSource(db, []string{"deployment_data", "test_data"}, 200)
	apps, err := source.FetchApps(context.Background())
	if err != nil {
		t.Fatalf("FetchApps() error = %v", err)
	}
	if !reflect.DeepEqual(apps, []string{"api-gateway", "frontend"}) {
		t.Fatalf("FetchApps() = %v", apps)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
