package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteSchema is the schema name reported for every SQLite table.
const sqliteSchema = "main"

type sqliteSourceDB struct{}

func (s *sqliteSourceDB) Name() string { return "SQLite" }

func (s *sqliteSourceDB) OpenDB(dsn string) (*sql.DB, error) {
	uri, err := sqliteReadOnlyURI(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func (s *sqliteSourceDB) CurrentDatabase(context.Context, *sql.DB) (string, error) {
	return sqliteSchema, nil
}

func sqliteCatalogQuery(objType string) catalogQuery {
	return catalogQuery{
		selectFrom:  "SELECT '" + sqliteSchema + "', name FROM sqlite_master WHERE type = '" + objType + "' AND name NOT LIKE 'sqlite_%'",
		schemaExpr:  "'" + sqliteSchema + "'",
		nameExpr:    "name",
		orderBy:     "name",
		placeholder: questionPlaceholder,
	}
}

func (s *sqliteSourceDB) ListTables(ctx context.Context, db *sql.DB, filter TableFilter) ([]TableDescriptor, error) {
	query, args := sqliteCatalogQuery("table").build(filter)
	return queryTables(ctx, db, query, args)
}

func (s *sqliteSourceDB) ListViews(ctx context.Context, db *sql.DB, filter TableFilter) ([]string, error) {
	query, args := sqliteCatalogQuery("view").build(filter)
	return queryQualifiedNames(ctx, db, query, args)
}

func (s *sqliteSourceDB) ListColumns(ctx context.Context, db *sql.DB, _ string, t TableDescriptor) ([]ColumnDescriptor, error) {
	// table_xinfo also lists generated columns; hidden=1 marks virtual-table internals
	rows, err := db.QueryContext(ctx,
		"SELECT name, type, cid, hidden FROM pragma_table_xinfo(?) WHERE hidden <> 1 ORDER BY cid", t.SourceName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnDescriptor
	for rows.Next() {
		var c ColumnDescriptor
		var cid, hidden int
		if err := rows.Scan(&c.Name, &c.DeclaredType, &cid, &hidden); err != nil {
			return nil, err
		}
		c.Ordinal = cid + 1
		c.Generated = sqliteGeneratedKind(hidden)
		c.SourceType = sqliteTypeFamily(normalizeAffinity(c.DeclaredType))
		parseSQLiteTypeParams(&c, c.DeclaredType)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func sqliteGeneratedKind(hidden int) string {
	switch hidden {
	case 2:
		return "VIRTUAL GENERATED"
	case 3:
		return "STORED GENERATED"
	default:
		return ""
	}
}

// normalizeAffinity extracts the lower-cased base type name from a declared
// SQLite type, e.g. "DECIMAL(10,2)" → "decimal".
func normalizeAffinity(declaredType string) string {
	dt := strings.TrimSpace(declaredType)
	if idx := strings.IndexByte(dt, '('); idx >= 0 {
		dt = dt[:idx]
	}
	return strings.ToLower(strings.TrimSpace(dt))
}

func sqliteTypeFamily(base string) string {
	switch base {
	case "":
		// no declared type: values of any storage class
		return "text"
	case "integer":
		// INTEGER columns hold 64-bit values (rowid aliases included)
		return "bigint"
	case "double precision":
		return "double"
	case "character", "varying character", "native character":
		return "char"
	default:
		return base
	}
}

func parseSQLiteTypeParams(col *ColumnDescriptor, declaredType string) {
	open := strings.IndexByte(declaredType, '(')
	close := strings.LastIndexByte(declaredType, ')')
	if open < 0 || close <= open {
		return
	}
	parts := strings.Split(declaredType[open+1:close], ",")

	var first, second int64
	hasFirst := len(parts) >= 1 && scanInt64(parts[0], &first)
	hasSecond := len(parts) >= 2 && scanInt64(parts[1], &second)

	switch col.SourceType {
	case "decimal", "numeric":
		if hasFirst {
			col.NumericPrecision = &first
			var scale int64
			if hasSecond {
				scale = second
			}
			col.NumericScale = &scale
		}
	default:
		if hasFirst {
			col.CharMaxLength = &first
		}
	}
}

func scanInt64(s string, out *int64) bool {
	n, err := fmt.Sscanf(strings.TrimSpace(s), "%d", out)
	return n == 1 && err == nil
}

func (s *sqliteSourceDB) QuoteIdentifier(name string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
}

func (s *sqliteSourceDB) QualifiedTable(_ string, t TableDescriptor) string {
	return s.QuoteIdentifier(t.SourceName)
}

func (s *sqliteSourceDB) NormalizeValue(val any, dbType string) any {
	switch baseTypeName(dbType) {
	case "DECIMAL", "NUMERIC":
		// NUMERIC affinity keeps text that does not convert losslessly
		if v, ok := val.(string); ok {
			if d, ok := parseDecimalPayload(v); ok {
				return d
			}
		}
	}
	return val
}

func (s *sqliteSourceDB) ExternalExportCommand(opts ExternalExportConfig, dsn, selectSQL, _ string) (externalCommand, error) {
	path, err := sqliteFilePath(dsn)
	if err != nil {
		return externalCommand{}, err
	}
	args := []string{exportProgram(opts, "sqlite3"), "-readonly", "-csv", "-noheader"}
	args = append(args, opts.Args...)
	args = append(args, path, selectSQL)
	return externalCommand{Args: args, Stdout: true}, nil
}

func (s *sqliteSourceDB) SetCharset(string) {}

// --- DSN handling ---

func sqliteReadOnlyURI(dsn string) (string, error) {
	// Reject in-memory databases
	if dsn == ":memory:" || dsn == "file::memory:" ||
		strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases are not supported (each sql.Open gets a separate DB)")
	}

	if !strings.HasPrefix(dsn, "file:") {
		// Plain file path → file URI with read-only mode
		return "file:" + dsn + "?mode=ro", nil
	}

	// URI form: add or override mode=ro
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sqliteFilePath returns the database file a DSN points at.
func sqliteFilePath(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		path := strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexByte(path, '?'); idx >= 0 {
			path = path[:idx]
		}
		return path, nil
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("sqlite dsn %q has no file path", dsn)
	}
	return path, nil
}
