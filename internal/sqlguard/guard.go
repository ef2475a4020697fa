// Package sqlguard validates that generated SQL is a single read-only
// statement before it is allowed anywhere near the executor.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// UnsafeSQLError reports SQL rejected by the guard. The caller must
// regenerate the statement; the executor is never invoked.
type UnsafeSQLError struct {
	Reason string
}

func (e *UnsafeSQLError) Error() string {
	return fmt.Sprintf("unsafe sql: %s", e.Reason)
}

var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "merge", "copy", "vacuum", "lock", "into",
}

var (
	forbiddenPattern = regexp.MustCompile(`\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

	// Single-quoted literals with doubled-quote escapes ('it''s').
	stringLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// Validate accepts exactly one SELECT or WITH statement and nothing else.
// String literals are blanked out before the structural checks so values
// like 'update-bot' or 'a;b' cannot trip them.
func Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimRight(trimmed, "; \t\n\r")
	if trimmed == "" {
		return &UnsafeSQLError{Reason: "empty statement"}
	}
	stripped := stringLiteralPattern.ReplaceAllString(trimmed, "''")
	if strings.Contains(stripped, ";") {
		return &UnsafeSQLError{Reason: "multiple statements"}
	}
	lower := strings.ToLower(stripped)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return &UnsafeSQLError{Reason: "only SELECT statements are allowed"}
	}
	if m := forbiddenPattern.FindString(lower); m != "" {
		return &UnsafeSQLError{Reason: fmt.Sprintf("forbidden keyword %q", m)}
	}
	return nil
}
