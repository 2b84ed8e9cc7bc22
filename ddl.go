package main

import (
	"context"
	"fmt"
	"strings"
)

// syntheticIDColumn lands tables whose catalog lists no columns.
const syntheticIDColumn = `"id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY`

// ddlFor produces idempotent DDL creating the target schema and table.
// Columns keep the order they are given in.
func ddlFor(targetSchema, targetTable string, cols []ColumnDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", pgIdent(targetSchema))
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pgQualified(targetSchema, targetTable))

	if len(cols) == 0 {
		b.WriteString("  " + syntheticIDColumn + "\n")
	}
	for i, col := range cols {
		fmt.Fprintf(&b, "  %s %s", pgIdent(col.Name), col.TargetType())
		if i < len(cols)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}

	b.WriteString(");")
	return b.String()
}

// applyDDL runs the table's DDL on the target.
func applyDDL(ctx context.Context, target Target, t TableDescriptor, ddl string) error {
	if err := target.Exec(ctx, ddl); err != nil {
		return &DDLError{Table: t.TargetQualified(), DDL: ddl, Err: err}
	}
	return nil
}
