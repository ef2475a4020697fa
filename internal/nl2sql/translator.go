package nl2sql

import (
	"context"

	"github.com/shipquery/shipquery/internal/schema"
	"github.com/shipquery/shipquery/internal/slots"
)

// Request carries the cache-miss context handed to the SQL generator: the
// extracted slots, the schema of the candidate tables, and the instruction
// describing filters and the relative-time placeholder grammar.
type Request struct {
	Question    string                    `json:"question"`
	Slots       slots.SlotSet             `json:"slots"`
	Schemas     []schema.ColumnDescriptor `json:"schemas"`
	Instruction string                    `json:"instruction"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
