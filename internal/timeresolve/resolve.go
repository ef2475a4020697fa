// Package timeresolve substitutes relative-time placeholders in a stored SQL
// template with concrete timestamp literals. Cached templates embed
// placeholders instead of absolute dates so one entry stays valid
// indefinitely; every use re-resolves against a fresh anchor.
package timeresolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Placeholder grammar: {{NOW}}, {{NOW-<n><unit>}} with unit h, d, w or mo,
// {{START_OF_DAY}} and {{START_OF_DAY-<n>d}}.
var (
	placeholderPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	nowOffsetPattern   = regexp.MustCompile(`^NOW-(\d+)(h|d|w|mo)$`)
	sodOffsetPattern   = regexp.MustCompile(`^START_OF_DAY-(\d+)d$`)
)

const timestampLayout = "2006-01-02 15:04:05"

// Resolve replaces every placeholder in template against the single anchor
// snapshot. All placeholders in one template observe the identical anchor,
// so a query never sees inconsistent time bounds.
func Resolve(template string, anchor time.Time) (string, error) {
	anchor = anchor.UTC()
	var resolveErr error
	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(raw string) string {
		token := strings.TrimSpace(raw[2 : len(raw)-2])
		value, err := resolveToken(token, anchor)
		if err != nil && resolveErr == nil {
			resolveErr = err
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

func resolveToken(token string, anchor time.Time) (string, error) {
	switch {
	case token == "NOW":
		return literal(anchor), nil
	case token == "START_OF_DAY":
		return literal(startOfDay(anchor)), nil
	}
	if m := nowOffsetPattern.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("invalid placeholder offset %q", token)
		}
		return literal(shift(anchor, n, m[2])), nil
	}
	if m := sodOffsetPattern.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("invalid placeholder offset %q", token)
		}
		return literal(startOfDay(anchor).AddDate(0, 0, -n)), nil
	}
	return "", fmt.Errorf("unknown placeholder {{%s}}", token)
}

func shift(anchor time.Time, n int, unit string) time.Time {
	switch unit {
	case "h":
		return anchor.Add(-time.Duration(n) * time.Hour)
	case "d":
		return anchor.AddDate(0, 0, -n)
	case "w":
		return anchor.AddDate(0, 0, -7*n)
	case "mo":
		return anchor.AddDate(0, -n, 0)
	default:
		return anchor
	}
}

func startOfDay(anchor time.Time) time.Time {
	year, month, day := anchor.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func literal(ts time.Time) string {
	return "'" + ts.Format(timestampLayout) + "'"
}
