package persistence

import "strings"

// sortSpec whitelists the columns a list query may be ordered by
type sortSpec struct {
	columns    map[string]struct{}
	defaultCol string
	defaultDir string
}

func newSortSpec(defaultCol, defaultDir string, columns ...string) sortSpec {
	set := make(map[string]struct{}, len(columns)+1)
	set[defaultCol] = struct{}{}
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return sortSpec{columns: set, defaultCol: defaultCol, defaultDir: defaultDir}
}

// clause builds an ORDER BY expression from untrusted input. Unknown
// columns and directions fall back to the defaults, and id breaks ties so
// that pages stay stable.
func (s sortSpec) clause(column, dir string) string {
	col := strings.TrimSpace(column)
	if _, ok := s.columns[col]; !ok {
		col = s.defaultCol
	}
	return col + " " + direction(dir, s.defaultDir) + ", id ASC"
}

func direction(dir, fallback string) string {
	switch d := strings.ToUpper(strings.TrimSpace(dir)); d {
	case "ASC", "DESC":
		return d
	}
	return fallback
}

var customerSort = newSortSpec("name", "ASC", "external_id", "email", "created_at", "updated_at")
