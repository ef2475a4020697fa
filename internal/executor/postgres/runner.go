package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shipquery/shipquery/internal/executor"
)

// Runner executes read-only SQL against the business database. Callers are
// expected to have validated the statement first.
type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

func (r *Runner) Run(ctx context.Context, query string) (executor.Result, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return executor.Result{}, &executor.ExecutionError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return executor.Result{}, &executor.ExecutionError{Err: fmt.Errorf("read columns: %w", err)}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return executor.Result{}, &executor.ExecutionError{Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return executor.Result{}, &executor.ExecutionError{Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return executor.Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
