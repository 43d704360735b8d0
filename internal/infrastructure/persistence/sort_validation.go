package persistence

import (
	"strings"
)

// sortSpec whitelists the columns a listing may be ordered by. Anything
// outside the whitelist falls back to the default column, so caller input
// never reaches the ORDER BY clause verbatim.
type sortSpec struct {
	fields       map[string]bool
	defaultField string
}

func newSortSpec(defaultField string, fields ...string) sortSpec {
	allowed := make(map[string]bool, len(fields)+1)
	allowed[defaultField] = true
	for _, f := range fields {
		allowed[f] = true
	}
	return sortSpec{fields: allowed, defaultField: defaultField}
}

// Field returns the requested column if allowed, otherwise the default
func (s sortSpec) Field(requested string) string {
	requested = strings.TrimSpace(requested)
	if s.fields[requested] {
		return requested
	}
	return s.defaultField
}

// Clause builds "<field> ASC|DESC"; direction defaults to DESC
func (s sortSpec) Clause(orderBy, orderDir string) string {
	return s.Field(orderBy) + " " + sortDirection(orderDir)
}

func sortDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "ASC"
	}
	return "DESC"
}

var campaignSort = newSortSpec("created_at",
	"id", "updated_at", "platform", "external_id", "name", "budget", "start_date", "end_date",
)
