package main

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// introspector reads the source catalog through a SourceDB dialect.
type introspector struct {
	src          SourceDB
	db           *sql.DB
	dbName       string
	targetSchema string
}

// Tables lists the base tables to migrate, in (schema, name) order.
func (in *introspector) Tables(ctx context.Context, filter TableFilter) ([]TableDescriptor, error) {
	tables, err := in.src.ListTables(ctx, in.db, filter)
	if err != nil {
		return nil, &MetadataError{Err: err}
	}
	for i := range tables {
		tables[i].TargetSchema = in.targetSchema
		tables[i].TargetName = tables[i].SourceName
	}
	// Order comes from the catalog query's ORDER BY (source collation).
	return tables, nil
}

// ColumnsOf returns the table's columns strictly in ordinal order.
func (in *introspector) ColumnsOf(ctx context.Context, t TableDescriptor) ([]ColumnDescriptor, error) {
	cols, err := in.src.ListColumns(ctx, in.db, in.dbName, t)
	if err != nil {
		return nil, &MetadataError{Table: t.SourceQualified(), Err: err}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
	return cols, nil
}

// Views lists views matching the same filter, for the skipped-objects report.
func (in *introspector) Views(ctx context.Context, filter TableFilter) ([]string, error) {
	return in.src.ListViews(ctx, in.db, filter)
}

// catalogQuery builds a parameterized INFORMATION_SCHEMA-style listing.
type catalogQuery struct {
	selectFrom    string // SELECT ... FROM ... WHERE <fixed predicate>
	schemaExpr    string
	nameExpr      string
	defaultSchema string // SQL expression used when no schema is given; "" means any
	orderBy       string
	placeholder   func(n int) string
}

func questionPlaceholder(int) string { return "?" }

func atPlaceholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (q catalogQuery) build(f TableFilter) (string, []any) {
	var b strings.Builder
	var args []any
	next := func(v string) string {
		args = append(args, v)
		return q.placeholder(len(args))
	}

	b.WriteString(q.selectFrom)
	switch {
	case len(f.Tables) > 0:
		conds := make([]string, 0, len(f.Tables))
		for _, t := range f.Tables {
			switch {
			case t.Schema != "":
				conds = append(conds, fmt.Sprintf("(%s = %s AND %s = %s)", q.schemaExpr, next(t.Schema), q.nameExpr, next(t.Name)))
			case q.defaultSchema != "":
				conds = append(conds, fmt.Sprintf("(%s = %s AND %s = %s)", q.schemaExpr, q.defaultSchema, q.nameExpr, next(t.Name)))
			default:
				conds = append(conds, fmt.Sprintf("(%s = %s)", q.nameExpr, next(t.Name)))
			}
		}
		b.WriteString(" AND (")
		b.WriteString(strings.Join(conds, " OR "))
		b.WriteString(")")
	case len(f.Schemas) > 0:
		phs := make([]string, len(f.Schemas))
		for i, s := range f.Schemas {
			phs[i] = next(s)
		}
		fmt.Fprintf(&b, " AND %s IN (%s)", q.schemaExpr, strings.Join(phs, ", "))
	case q.defaultSchema != "":
		fmt.Fprintf(&b, " AND %s = %s", q.schemaExpr, q.defaultSchema)
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	return b.String(), args
}

func queryTables(ctx context.Context, db *sql.DB, query string, args []any) ([]TableDescriptor, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []TableDescriptor
	for rows.Next() {
		var t TableDescriptor
		if err := rows.Scan(&t.SourceSchema, &t.SourceName); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func queryQualifiedNames(ctx context.Context, db *sql.DB, query string, args []any) ([]string, error) {
	tables, err := queryTables(ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.SourceQualified()
	}
	return names, nil
}

// scanCatalogColumns reads rows shaped (name, data_type, char_max_length,
// numeric_precision, numeric_scale, ordinal_position, generated, collation).
func scanCatalogColumns(rows *sql.Rows, family func(string) string) ([]ColumnDescriptor, error) {
	var cols []ColumnDescriptor
	for rows.Next() {
		var c ColumnDescriptor
		var charMax, precision, scale sql.NullInt64
		var generated, collation sql.NullString
		if err := rows.Scan(&c.Name, &c.DeclaredType, &charMax, &precision, &scale, &c.Ordinal, &generated, &collation); err != nil {
			return nil, err
		}
		c.Generated = generated.String
		c.Collation = collation.String
		c.SourceType = family(strings.ToLower(c.DeclaredType))
		c.CharMaxLength = nullInt64Ptr(charMax)
		c.NumericPrecision = nullInt64Ptr(precision)
		c.NumericScale = nullInt64Ptr(scale)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// buildSelect returns the export query with columns in ordinal order.
func buildSelect(src SourceDB, dbName string, t TableDescriptor, cols []ColumnDescriptor) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = src.QuoteIdentifier(c.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), src.QualifiedTable(dbName, t))
}
