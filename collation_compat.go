package main

import (
	"fmt"
	"sort"
	"strings"
)

// collationWarnings reports case-insensitive source collations. PostgreSQL
// text comparisons are case-sensitive by default, so lookups and uniqueness
// may behave differently after the move.
func collationWarnings(t TableDescriptor, cols []ColumnDescriptor) []string {
	// collation → columns using it
	ci := make(map[string][]string)
	for _, c := range cols {
		if c.Collation == "" || !isCaseInsensitiveCollation(c.Collation) {
			continue
		}
		ci[c.Collation] = append(ci[c.Collation], c.Name)
	}

	var warnings []string
	for _, coll := range sortedKeys(ci) {
		names := ci[coll]
		warnings = append(warnings, fmt.Sprintf(
			"%d column(s) of %s use %s (case-insensitive); PostgreSQL text comparisons are case-sensitive by default: %s",
			len(names), t.SourceQualified(), coll, strings.Join(names, ", ")))
	}
	return warnings
}

// isCaseInsensitiveCollation matches SQL Server names like
// SQL_Latin1_General_CP1_CI_AS and MySQL names like utf8mb4_0900_ai_ci.
func isCaseInsensitiveCollation(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "_ci_") || strings.HasSuffix(lower, "_ci")
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
