// Package slots turns a natural-language question about CI/CD activity into a
// typed slot set and a canonical cache key. Extraction is deterministic
// pattern matching over a fixed vocabulary; it never consults external state.
package slots

import (
	"fmt"
	"strings"
)

type Operation string

const (
	OpSelect       Operation = "SELECT"
	OpSelectLatest Operation = "SELECT_LATEST"
	OpCount        Operation = "COUNT"
)

type TimeUnit string

const (
	UnitHours  TimeUnit = "hours"
	UnitDays   TimeUnit = "days"
	UnitWeeks  TimeUnit = "weeks"
	UnitMonths TimeUnit = "months"
)

// TimeRange is a relative window anchored to request time. StartOfDay marks
// phrases like "today" whose anchor is the start of the current day rather
// than raw now.
type TimeRange struct {
	Value      int      `json:"value"`
	Unit       TimeUnit `json:"unit"`
	StartOfDay bool     `json:"start_of_day,omitempty"`
}

// SlotSet holds at most one slot per kind. Operation and Table are always
// bound; the zero value of the remaining fields means unbound.
type SlotSet struct {
	Operation   Operation  `json:"operation"`
	Table       string     `json:"table"`
	App         string     `json:"app,omitempty"`
	Environment string     `json:"environment,omitempty"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// Data entities addressable by questions, with their backing tables.
const (
	TableDeployment = "deployment"
	TableTestResult = "test_result"
)

var tableBackingTables = map[string][]string{
	TableDeployment: {"deployment_data"},
	TableTestResult: {"test_data"},
}

// TableHints returns the physical tables backing the bound Table entity.
func (s SlotSet) TableHints() []string {
	hints := tableBackingTables[s.Table]
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}

// AmbiguityError reports an app mention matching more than one registered
// application. The caller must disambiguate; extraction never picks one.
type AmbiguityError struct {
	Mention    string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous app %q: candidates %s", e.Mention, strings.Join(e.Candidates, ", "))
}

// UnsupportedTableError reports a question naming no recognized data entity.
type UnsupportedTableError struct {
	Question string
}

func (e *UnsupportedTableError) Error() string {
	return fmt.Sprintf("no recognized data entity in question %q", e.Question)
}

// UnsupportedTimePhraseError reports a time phrase outside the supported
// hour/day/week/month vocabulary.
type UnsupportedTimePhraseError struct {
	Phrase string
}

func (e *UnsupportedTimePhraseError) Error() string {
	return fmt.Sprintf("unsupported time phrase %q", e.Phrase)
}
