package pipeline

import (
	"fmt"
	"strings"

	"github.com/shipquery/shipquery/internal/schema"
	"github.com/shipquery/shipquery/internal/slots"
)

// buildInstruction renders the generation brief for a cache miss: target
// tables, slot-derived filters, and the relative-time placeholder grammar
// the generated SQL must use so the cached template stays valid over time.
func buildInstruction(set slots.SlotSet, descriptors []schema.ColumnDescriptor) string {
	var b strings.Builder

	tables := set.TableHints()
	b.WriteString(fmt.Sprintf("Generate a single PostgreSQL SELECT statement over %s.\n", strings.Join(tables, ", ")))

	switch set.Operation {
	case slots.OpCount:
		b.WriteString("Return an aggregate count, not individual rows.\n")
	case slots.OpSelectLatest:
		b.WriteString("Return the most recent row(s): order by the date column descending.\n")
	}

	if set.App != "" {
		b.WriteString(fmt.Sprintf("Filter app_name = '%s'.\n", set.App))
	}
	if set.Environment != "" {
		b.WriteString(fmt.Sprintf("Filter %s = '%s'.\n", environmentColumn(set.Table), set.Environment))
	}
	if tr := set.TimeRange; tr != nil {
		b.WriteString(fmt.Sprintf("Restrict the date column to the last %d %s using the placeholder %s as the lower bound.\n",
			tr.Value, tr.Unit, timePlaceholder(*tr)))
	}
	if set.Limit > 0 {
		b.WriteString(fmt.Sprintf("Apply LIMIT %d.\n", set.Limit))
	}

	b.WriteString("For any relative date bound use the placeholders {{NOW}}, {{NOW-<n>h}}, {{NOW-<n>d}}, {{NOW-<n>w}}, {{NOW-<n>mo}}, {{START_OF_DAY}} or {{START_OF_DAY-<n>d}} instead of literal timestamps; they are resolved at execution time.\n")

	samples := make([]string, 0)
	for _, desc := range descriptors {
		if len(desc.SampleValues) == 0 {
			continue
		}
		samples = append(samples, fmt.Sprintf("%s.%s: %s", desc.Table, desc.Name, strings.Join(desc.SampleValues, ", ")))
	}
	if len(samples) > 0 {
		b.WriteString("Known values: " + strings.Join(samples, "; ") + ".\n")
	}

	return b.String()
}

// environmentColumn resolves the environment column for the bound entity:
// deployment_data calls it deploy_env, test_data calls it environment.
func environmentColumn(table string) string {
	if table == slots.TableTestResult {
		return "environment"
	}
	return "deploy_env"
}

func timePlaceholder(tr slots.TimeRange) string {
	if tr.StartOfDay {
		if tr.Value == 0 {
			return "{{START_OF_DAY}}"
		}
		return fmt.Sprintf("{{START_OF_DAY-%dd}}", tr.Value)
	}
	switch tr.Unit {
	case slots.UnitHours:
		return fmt.Sprintf("{{NOW-%dh}}", tr.Value)
	case slots.UnitWeeks:
		return fmt.Sprintf("{{NOW-%dw}}", tr.Value)
	case slots.UnitMonths:
		return fmt.Sprintf("{{NOW-%dmo}}", tr.Value)
	default:
		return fmt.Sprintf("{{NOW-%dd}}", tr.Value)
	}
}
