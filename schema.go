package main

import (
	"path/filepath"
	"strings"
)

// pgIdent double-quotes a PostgreSQL identifier, preserving case and
// neutralising reserved words. Embedded quotes are doubled.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgQualified returns "schema"."table".
func pgQualified(schema, table string) string {
	return pgIdent(schema) + "." + pgIdent(table)
}

// pgIdentList quotes and comma-joins column names, keeping their order.
func pgIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// qualifiedName is an operator-supplied table reference. Schema is empty for
// unqualified references.
type qualifiedName struct {
	Schema string
	Name   string
}

// parseQualifiedName accepts schema.table, [schema].[table], "schema"."table"
// and bare table names. Dots inside brackets or quotes are part of the name.
func parseQualifiedName(s string) qualifiedName {
	parts := splitIdentParts(strings.TrimSpace(s))
	switch len(parts) {
	case 0:
		return qualifiedName{}
	case 1:
		return qualifiedName{Name: parts[0]}
	default:
		// database.schema.table: the leading parts are ignored
		return qualifiedName{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]}
	}
}

func splitIdentParts(s string) []string {
	var parts []string
	var cur strings.Builder
	var closer byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case closer != 0 && c == closer:
			// doubled closer is an escaped character
			if i+1 < len(s) && s[i+1] == closer {
				cur.WriteByte(c)
				i++
				continue
			}
			closer = 0
		case closer != 0:
			cur.WriteByte(c)
		case c == '[':
			closer = ']'
		case c == '"':
			closer = '"'
		case c == '`':
			closer = '`'
		case c == '.':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if last := strings.TrimSpace(cur.String()); last != "" || len(parts) > 0 {
		parts = append(parts, last)
	}
	return parts
}

func parseQualifiedNames(list []string) []qualifiedName {
	var out []qualifiedName
	for _, s := range list {
		q := parseQualifiedName(s)
		if q.Name == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

// exportFileName derives the intermediate file name for a table. Characters
// that are unsafe in paths on any platform are replaced with '_'.
func exportFileName(t TableDescriptor) string {
	var b strings.Builder
	for _, r := range t.SourceSchema + "_" + t.SourceName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".csv"
}

func exportPath(dir string, t TableDescriptor) string {
	return filepath.Join(dir, exportFileName(t))
}
