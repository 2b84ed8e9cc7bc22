package main

import "fmt"

// generatedColumnWarnings lists computed columns. Their values are exported
// like any other column, so the target holds plain data.
func generatedColumnWarnings(t TableDescriptor, cols []ColumnDescriptor) []string {
	var warnings []string
	for _, c := range cols {
		if c.Generated == "" {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"generated column %s.%s (%s) will be materialized as plain data; generation expression is not recreated",
			t.SourceQualified(), c.Name, c.Generated,
		))
	}
	return warnings
}
