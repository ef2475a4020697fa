package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shipquery/shipquery/internal/schema"
)

// Columns whose live values are worth sampling into the descriptors.
var sampledColumns = map[string]struct{}{
	"app_name":    {},
	"deploy_env":  {},
	"app_version": {},
	"environment": {},
}

// Provider reads column descriptors from information_schema and samples
// distinct values for enumerable columns.
type Provider struct {
	db          *sql.DB
	sampleLimit int
}

func NewProvider(db *sql.DB, sampleLimit int) *Provider {
	if sampleLimit <= 0 {
		sampleLimit = 10
	}
	return &Provider{db: db, sampleLimit: sampleLimit}
}

func (p *Provider) Describe(ctx context.Context, tables []string) ([]schema.ColumnDescriptor, error) {
	if len(tables) == 0 {
		return nil, &schema.FetchError{Err: fmt.Errorf("no tables requested")}
	}

	placeholders := make([]string, len(tables))
	args := make([]any, len(tables))
	for i, table := range tables {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = table
	}
	query := fmt.Sprintf(`
SELECT table_name, column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name IN (%s)
ORDER BY table_name, ordinal_position`, strings.Join(placeholders, ", "))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &schema.FetchError{Err: fmt.Errorf("describe tables: %w", err)}
	}
	defer func() { _ = rows.Close() }()

	descriptors := make([]schema.ColumnDescriptor, 0)
	for rows.Next() {
		var desc schema.ColumnDescriptor
		var nullable string
		if err := rows.Scan(&desc.Table, &desc.Name, &desc.Type, &nullable, &desc.Default); err != nil {
			return nil, &schema.FetchError{Err: fmt.Errorf("scan column row: %w", err)}
		}
		desc.Nullable = strings.EqualFold(nullable, "YES")
		descriptors = append(descriptors, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, &schema.FetchError{Err: fmt.Errorf("iterate column rows: %w", err)}
	}
	if len(descriptors) == 0 {
		return nil, &schema.FetchError{Err: fmt.Errorf("no columns found for tables %s", strings.Join(tables, ", "))}
	}

	for i := range descriptors {
		if _, ok := sampledColumns[descriptors[i].Name]; !ok {
			continue
		}
		values, err := p.sampleValues(ctx, descriptors[i].Table, descriptors[i].Name)
		if err != nil {
			return nil, err
		}
		descriptors[i].SampleValues = values
	}
	return descriptors, nil
}

func (p *Provider) sampleValues(ctx context.Context, table, column string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT %d`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), quoteIdent(column), p.sampleLimit)

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &schema.FetchError{Err: fmt.Errorf("sample %s.%s: %w", table, column, err)}
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0, p.sampleLimit)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, &schema.FetchError{Err: fmt.Errorf("scan sample value: %w", err)}
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, &schema.FetchError{Err: fmt.Errorf("iterate sample values: %w", err)}
	}
	return values, nil
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
