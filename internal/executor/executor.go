// Package executor runs validated read-only SQL against the business
// database and returns rows in a transport-friendly shape.
package executor

import (
	"context"
	"fmt"
)

type Result struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// ExecutionError carries the executor's failure verbatim to the caller.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Runner interface {
	Run(ctx context.Context, sql string) (Result, error)
}
