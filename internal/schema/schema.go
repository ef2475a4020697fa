// Package schema describes the business tables a generated query may touch.
package schema

import (
	"context"
	"fmt"
)

// ColumnDescriptor describes one column of a business table. SampleValues
// carries a few distinct live values for columns worth enumerating in the
// generation instruction (app names, environments, versions).
type ColumnDescriptor struct {
	Table        string   `json:"table"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Nullable     bool     `json:"nullable"`
	Default      string   `json:"default,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// FetchError marks a transient schema retrieval failure. Callers may retry.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("schema fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Provider returns column descriptors for the given physical tables.
type Provider interface {
	Describe(ctx context.Context, tables []string) ([]ColumnDescriptor, error)
}
