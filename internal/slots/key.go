package slots

import (
	"strconv"
	"strings"
)

// Wildcard is the reserved token for an unbound slot position.
const Wildcard = "*"

// startOfDaySuffix marks a time range anchored to midnight rather than to
// the request timestamp, so "today" and "0 days ago" keep distinct keys.
const startOfDaySuffix = "@sod"

// BuildKey encodes a SlotSet as the canonical cache key
// Operation:Table:App:Environment:TimeUnit:TimeValue:Limit. The encoding is
// structural, not a digest: two slot sets differing in any bound field,
// including the start-of-day anchor, produce different keys, and the same
// slot set always produces the same key. Bound tokens are drawn from closed
// vocabularies or registry identifiers that cannot contain the separator.
func BuildKey(set SlotSet) string {
	fields := [7]string{
		string(set.Operation),
		set.Table,
		Wildcard,
		Wildcard,
		Wildcard,
		Wildcard,
		Wildcard,
	}
	if set.App != "" {
		fields[2] = set.App
	}
	if set.Environment != "" {
		fields[3] = set.Environment
	}
	if set.TimeRange != nil {
		fields[4] = string(set.TimeRange.Unit)
		if set.TimeRange.StartOfDay {
			fields[4] += startOfDaySuffix
		}
		fields[5] = strconv.Itoa(set.TimeRange.Value)
	}
	if set.Limit > 0 {
		fields[6] = strconv.Itoa(set.Limit)
	}
	return strings.Join(fields[:], ":")
}
