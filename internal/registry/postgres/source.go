package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Source reads distinct app_name values from the business tables.
type Source struct {
	db     *sql.DB
	tables []string
	limit  int
}

func NewSource(db *sql.DB, tables []string, limit int) *Source {
	if len(tables) == 0 {
		tables = []string{"deployment_data", "test_data"}
	}
	if limit <= 0 {
		limit = 200
	}
	return &Source{db: db, tables: tables, limit: limit}
}

func (s *Source) FetchApps(ctx context.Context) ([]string, error) {
	selects := make([]string, len(s.tables))
	for i, table := range s.tables {
		selects[i] = fmt.Sprintf(`SELECT DISTINCT app_name FROM %s WHERE app_name IS NOT NULL`, quoteIdent(table))
	}
	query := fmt.Sprintf(`%s ORDER BY app_name LIMIT %d`, strings.Join(selects, " UNION "), s.limit)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch app names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	apps := make([]string, 0, s.limit)
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, fmt.Errorf("scan app name: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app names: %w", err)
	}
	return apps, nil
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
