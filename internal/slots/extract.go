package slots

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// identifierPattern constrains registered app names so a bound App token can
// never contain the key separator.
var identifierPattern = regexp.MustCompile(`^[a-z0-9._/-]+$`)

// ValidIdentifier reports whether name may be registered as a known app.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(strings.ToLower(name))
}

var (
	countPattern  = regexp.MustCompile(`\b(?:how many|count|total number|number of)\b`)
	latestPattern = regexp.MustCompile(`\b(?:last|latest|most recent)\s+(deployment|deploy|release|rollback|build|test|run|result)(s?)\b`)

	tableRules = []struct {
		pattern *regexp.Regexp
		table   string
	}{
		{regexp.MustCompile(`\b(?:tests?|testing|test\s+results?|fail(?:ed|ure|ures)?)\b`), TableTestResult},
		{regexp.MustCompile(`\b(?:deploy(?:s|ed|ment|ments)?|release[sd]?|releases|rollbacks?|ship(?:ped)?)\b`), TableDeployment},
	}

	envRules = []struct {
		pattern *regexp.Regexp
		env     string
	}{
		{regexp.MustCompile(`\b(?:prod|production)\b`), "PROD"},
		{regexp.MustCompile(`\bstag(?:ing|e)?\b`), "STAGING"},
		{regexp.MustCompile(`\b(?:dev|development)\b`), "DEV"},
		{regexp.MustCompile(`\bqa\b`), "QA"},
	}

	unsupportedTimePattern = regexp.MustCompile(`\b(?:(?:last|past|previous|this)\s+(?:\d+\s+)?years?|\d+\s+years?\s+ago)\b`)
	numericTimePattern     = regexp.MustCompile(`\b(?:last|past|previous)\s+(\d+)\s+(hour|day|week|month)s?\b`)
	agoTimePattern         = regexp.MustCompile(`\b(\d+)\s+(hour|day|week|month)s?\s+ago\b`)
	bareUnitTimePattern    = regexp.MustCompile(`\b(?:last|past|previous|this)\s+(hour|day|week|month)\b`)
	todayPattern           = regexp.MustCompile(`\btoday\b`)
	yesterdayPattern       = regexp.MustCompile(`\byesterday\b`)

	limitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:last|latest|most recent|top|first)\s+(\d+)\s+(?:deployments?|releases?|builds?|tests?|runs?|results?|records?|rows?)\b`),
		regexp.MustCompile(`\b(?:top|first)\s+(\d+)\b`),
		regexp.MustCompile(`\blimit\s+(?:to\s+)?(\d+)\b`),
		regexp.MustCompile(`\b(?:show|get|give)\s+(?:me\s+)?(?:the\s+)?(\d+)\b`),
		regexp.MustCompile(`\b(\d+)\s+(?:results?|records?|rows?)\b`),
	}

	tokenSplitPattern = regexp.MustCompile(`[^a-z0-9._/-]+`)
)

// appStopwords excludes vocabulary words from app-mention candidacy.
var appStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "about": {}, "from": {}, "with": {},
	"show": {}, "get": {}, "give": {}, "list": {}, "what": {}, "was": {},
	"were": {}, "how": {}, "many": {}, "count": {}, "total": {}, "number": {},
	"find": {}, "display": {}, "last": {}, "latest": {}, "most": {},
	"recent": {}, "past": {}, "previous": {}, "this": {}, "that": {},
	"today": {}, "yesterday": {}, "ago": {}, "top": {}, "first": {},
	"limit": {}, "app": {}, "application": {}, "deploy": {}, "deployed": {},
	"deployment": {}, "deployments": {}, "release": {}, "releases": {},
	"released": {}, "rollback": {}, "rollbacks": {}, "build": {},
	"builds": {}, "shipped": {}, "test": {}, "tests": {}, "testing": {},
	"failed": {}, "failure": {}, "failures": {}, "result": {},
	"results": {}, "record": {}, "records": {}, "rows": {}, "run": {},
	"ran": {}, "prod": {}, "production": {}, "staging": {}, "stage": {},
	"dev": {}, "development": {}, "hour": {}, "hours": {}, "day": {},
	"days": {}, "week": {}, "weeks": {}, "month": {}, "months": {},
	"year": {}, "years": {},
}

// Extractor decomposes a question into a SlotSet. The known-app list is the
// only injected state; matching against it is still pure computation.
type Extractor struct {
	knownApps []string
}

// NewExtractor builds an extractor over the given registered app names.
// Names are kept in lower case; invalid identifiers are dropped.
func NewExtractor(knownApps []string) *Extractor {
	apps := make([]string, 0, len(knownApps))
	for _, app := range knownApps {
		app = strings.ToLower(strings.TrimSpace(app))
		if app == "" || !identifierPattern.MatchString(app) {
			continue
		}
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return &Extractor{knownApps: apps}
}

// Extract runs one independent pass per slot kind over the question.
func (e *Extractor) Extract(question string) (SlotSet, error) {
	lower := strings.ToLower(question)

	table, ok := extractTable(lower)
	if !ok {
		return SlotSet{}, &UnsupportedTableError{Question: question}
	}

	timeRange, err := extractTimeRange(lower)
	if err != nil {
		return SlotSet{}, err
	}

	app, err := e.extractApp(lower)
	if err != nil {
		return SlotSet{}, err
	}

	operation := extractOperation(lower)
	limit := extractLimit(lower)
	if operation == OpSelectLatest && limit == 0 {
		limit = 1
	}

	return SlotSet{
		Operation:   operation,
		Table:       table,
		App:         app,
		Environment: extractEnvironment(lower),
		TimeRange:   timeRange,
		Limit:       limit,
	}, nil
}

func extractOperation(lower string) Operation {
	if countPattern.MatchString(lower) {
		return OpCount
	}
	if m := latestPattern.FindStringSubmatch(lower); m != nil && m[2] == "" {
		return OpSelectLatest
	}
	return OpSelect
}

func extractTable(lower string) (string, bool) {
	for _, rule := range tableRules {
		if rule.pattern.MatchString(lower) {
			return rule.table, true
		}
	}
	return "", false
}

func extractEnvironment(lower string) string {
	for _, rule := range envRules {
		if rule.pattern.MatchString(lower) {
			return rule.env
		}
	}
	return ""
}

var timeUnitNames = map[string]TimeUnit{
	"hour":  UnitHours,
	"day":   UnitDays,
	"week":  UnitWeeks,
	"month": UnitMonths,
}

func extractTimeRange(lower string) (*TimeRange, error) {
	if m := unsupportedTimePattern.FindString(lower); m != "" {
		return nil, &UnsupportedTimePhraseError{Phrase: m}
	}
	for _, pattern := range []*regexp.Regexp{numericTimePattern, agoTimePattern} {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			value, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return &TimeRange{Value: value, Unit: timeUnitNames[m[2]]}, nil
		}
	}
	if m := bareUnitTimePattern.FindStringSubmatch(lower); m != nil {
		return &TimeRange{Value: 1, Unit: timeUnitNames[m[1]]}, nil
	}
	if todayPattern.MatchString(lower) {
		return &TimeRange{Value: 0, Unit: UnitDays, StartOfDay: true}, nil
	}
	if yesterdayPattern.MatchString(lower) {
		return &TimeRange{Value: 1, Unit: UnitDays}, nil
	}
	return nil, nil
}

func extractLimit(lower string) int {
	for _, pattern := range limitPatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			value, err := strconv.Atoi(m[1])
			if err != nil || value <= 0 {
				continue
			}
			return value
		}
	}
	return 0
}

// extractApp matches question tokens against the registry. An exact token
// match wins outright; otherwise substring candidates are collected and two
// or more distinct candidates are an ambiguity, never a silent pick.
func (e *Extractor) extractApp(lower string) (string, error) {
	if len(e.knownApps) == 0 {
		return "", nil
	}

	tokens := tokenSplitPattern.Split(lower, -1)
	known := make(map[string]struct{}, len(e.knownApps))
	for _, app := range e.knownApps {
		known[app] = struct{}{}
	}

	for _, token := range tokens {
		if _, ok := known[token]; ok {
			return token, nil
		}
	}

	candidates := map[string]struct{}{}
	var mention string
	for _, token := range tokens {
		if len(token) < 3 {
			continue
		}
		if _, stop := appStopwords[token]; stop {
			continue
		}
		for _, app := range e.knownApps {
			if strings.Contains(app, token) {
				candidates[app] = struct{}{}
				mention = token
			}
		}
		if len(candidates) > 0 {
			break
		}
	}

	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		for app := range candidates {
			return app, nil
		}
		return "", nil
	default:
		names := make([]string, 0, len(candidates))
		for app := range candidates {
			names = append(names, app)
		}
		sort.Strings(names)
		return "", &AmbiguityError{Mention: mention, Candidates: names}
	}
}
