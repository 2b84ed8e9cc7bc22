package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/shopspring/decimal"
)

type mssqlSourceDB struct{}

func (m *mssqlSourceDB) Name() string { return "SQL Server" }

func (m *mssqlSourceDB) OpenDB(dsn string) (*sql.DB, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("parse mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql: %w", err)
	}
	return db, nil
}

func (m *mssqlSourceDB) CurrentDatabase(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&name); err != nil {
		return "", fmt.Errorf("current database: %w", err)
	}
	return name, nil
}

func mssqlCatalogQuery(tableType string) catalogQuery {
	return catalogQuery{
		selectFrom:  "SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = '" + tableType + "'",
		schemaExpr:  "TABLE_SCHEMA",
		nameExpr:    "TABLE_NAME",
		orderBy:     "TABLE_SCHEMA, TABLE_NAME",
		placeholder: atPlaceholder,
	}
}

func (m *mssqlSourceDB) ListTables(ctx context.Context, db *sql.DB, filter TableFilter) ([]TableDescriptor, error) {
	query, args := mssqlCatalogQuery("BASE TABLE").build(filter)
	return queryTables(ctx, db, query, args)
}

func (m *mssqlSourceDB) ListViews(ctx context.Context, db *sql.DB, filter TableFilter) ([]string, error) {
	query, args := mssqlCatalogQuery("VIEW").build(filter)
	return queryQualifiedNames(ctx, db, query, args)
}

func (m *mssqlSourceDB) ListColumns(ctx context.Context, db *sql.DB, dbName string, t TableDescriptor) ([]ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH,
		        NUMERIC_PRECISION, NUMERIC_SCALE, ORDINAL_POSITION,
		        CASE WHEN COLUMNPROPERTY(OBJECT_ID(QUOTENAME(TABLE_SCHEMA) + '.' + QUOTENAME(TABLE_NAME)),
		                                 COLUMN_NAME, 'IsComputed') = 1
		             THEN 'computed' ELSE '' END,
		        COLLATION_NAME
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_CATALOG = @p1 AND TABLE_SCHEMA = @p2 AND TABLE_NAME = @p3
		 ORDER BY ORDINAL_POSITION`,
		dbName, t.SourceSchema, t.SourceName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCatalogColumns(rows, mssqlTypeFamily)
}

// mssqlTypeFamily folds SQL Server spellings into mapType families.
func mssqlTypeFamily(dataType string) string {
	switch dataType {
	case "rowversion", "timestamp":
		// rowversion is an 8-byte counter, not a point in time
		return "binary"
	default:
		return dataType
	}
}

func (m *mssqlSourceDB) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (m *mssqlSourceDB) QualifiedTable(dbName string, t TableDescriptor) string {
	ref := m.QuoteIdentifier(t.SourceSchema) + "." + m.QuoteIdentifier(t.SourceName)
	if dbName == "" {
		return ref
	}
	return m.QuoteIdentifier(dbName) + "." + ref
}

func (m *mssqlSourceDB) NormalizeValue(val any, dbType string) any {
	switch baseTypeName(dbType) {
	case "UNIQUEIDENTIFIER":
		// The driver hands back GUIDs in wire (mixed-endian) byte order.
		var u mssql.UniqueIdentifier
		switch val.(type) {
		case []byte, string:
			if err := u.Scan(val); err == nil {
				return uuid.UUID(u)
			}
		}
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		if d, ok := parseDecimalPayload(val); ok {
			return d
		}
	}
	return val
}

func (m *mssqlSourceDB) ExternalExportCommand(opts ExternalExportConfig, dsn, selectSQL, path string) (externalCommand, error) {
	cfg, err := msdsn.Parse(dsn)
	if err != nil {
		return externalCommand{}, fmt.Errorf("parse mssql dsn: %w", err)
	}

	server := cfg.Host
	if cfg.Instance != "" {
		server += `\` + cfg.Instance
	}
	if cfg.Port != 0 {
		server += "," + strconv.FormatUint(cfg.Port, 10)
	}

	format := "-c"
	if opts.Unicode {
		format = "-w" // UTF-16LE output
	}

	args := []string{exportProgram(opts, "bcp"), selectSQL, "queryout", path, format, "-t,", "-S", server}
	if cfg.Database != "" {
		args = append(args, "-d", cfg.Database)
	}
	if cfg.User != "" {
		args = append(args, "-U", cfg.User, "-P", cfg.Password)
	} else {
		args = append(args, "-T")
	}
	args = append(args, opts.Args...)
	return externalCommand{Args: args, UTF16LE: opts.Unicode}, nil
}

func (m *mssqlSourceDB) SetCharset(string) {}

// parseDecimalPayload turns a driver's textual decimal into decimal.Decimal.
func parseDecimalPayload(val any) (decimal.Decimal, bool) {
	var s string
	switch v := val.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
