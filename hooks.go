package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// runHooks executes operator SQL files on the target. {{schema}} in a file
// expands to the target schema.
func runHooks(ctx context.Context, target Target, cfg *MigrationConfig, files []string, phase string) error {
	if len(files) == 0 {
		return nil
	}
	log.Printf("  running %s hooks (%d files)...", phase, len(files))

	for _, f := range files {
		data, err := os.ReadFile(cfg.resolvePath(f))
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}

		stmts := splitStatements(strings.ReplaceAll(string(data), "{{schema}}", cfg.Schema))
		log.Printf("    %s: %d statements", f, len(stmts))
		for i, stmt := range stmts {
			if err := target.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("hook %s: %s: statement %d: %w\nSQL: %s", phase, f, i+1, err, stmt)
			}
		}
	}
	return nil
}

// splitStatements cuts SQL text at top-level semicolons. Semicolons inside
// quotes, comments and dollar-quoted bodies do not split; comments stay
// attached to the statement that follows them.
func splitStatements(sql string) []string {
	var stmts []string
	start := 0
	for i := 0; i < len(sql); {
		if sql[i] == ';' {
			if s := strings.TrimSpace(sql[start:i]); s != "" {
				stmts = append(stmts, s)
			}
			i++
			start = i
			continue
		}
		i = sqlTokenEnd(sql, i)
	}
	if s := strings.TrimSpace(sql[start:]); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// sqlTokenEnd returns the offset just past the lexical unit starting at i.
// Unterminated units run to the end of the input.
func sqlTokenEnd(sql string, i int) int {
	rest := sql[i:]
	switch {
	case strings.HasPrefix(rest, "--"):
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			return i + nl + 1
		}
		return len(sql)
	case strings.HasPrefix(rest, "/*"):
		return blockCommentEnd(sql, i)
	case rest[0] == '\'' || rest[0] == '"':
		return quotedEnd(sql, i)
	case rest[0] == '$':
		tag, ok := parseDollarTag(sql, i)
		if !ok {
			return i + 1
		}
		body := i + len(tag)
		if k := strings.Index(sql[body:], tag); k >= 0 {
			return body + k + len(tag)
		}
		return len(sql)
	default:
		return i + 1
	}
}

// blockCommentEnd handles nested /* */ comments.
func blockCommentEnd(sql string, i int) int {
	depth := 0
	for j := i; j+1 < len(sql); j++ {
		switch sql[j : j+2] {
		case "/*":
			depth++
			j++
		case "*/":
			depth--
			j++
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(sql)
}

// quotedEnd handles '...' literals and "..." identifiers, where a doubled
// quote character is an escape.
func quotedEnd(sql string, i int) int {
	q := sql[i]
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != q {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

// parseDollarTag recognizes $$ and $tag$ openers at i.
func parseDollarTag(sql string, i int) (string, bool) {
	if i+1 >= len(sql) || sql[i] != '$' {
		return "", false
	}
	if sql[i+1] == '$' {
		return "$$", true
	}
	if !isDollarTagStart(sql[i+1]) {
		return "", false
	}
	j := i + 2
	for j < len(sql) && isDollarTagChar(sql[j]) {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isDollarTagStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDollarTagChar(c byte) bool {
	return isDollarTagStart(c) || (c >= '0' && c <= '9')
}
