package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type mysqlSourceDB struct {
	charset string
}

func (m *mysqlSourceDB) Name() string { return "MySQL" }

func (m *mysqlSourceDB) OpenDB(dsn string) (*sql.DB, error) {
	readDSN, err := mysqlDSNWithReadOptions(dsn, m.charset)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", readDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

func (m *mysqlSourceDB) CurrentDatabase(ctx context.Context, db *sql.DB) (string, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return "", fmt.Errorf("current database: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("mysql dsn does not select a database")
	}
	return name.String, nil
}

func mysqlCatalogQuery(tableType string) catalogQuery {
	return catalogQuery{
		selectFrom:    "SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = '" + tableType + "'",
		schemaExpr:    "TABLE_SCHEMA",
		nameExpr:      "TABLE_NAME",
		defaultSchema: "DATABASE()",
		orderBy:       "TABLE_SCHEMA, TABLE_NAME",
		placeholder:   questionPlaceholder,
	}
}

func (m *mysqlSourceDB) ListTables(ctx context.Context, db *sql.DB, filter TableFilter) ([]TableDescriptor, error) {
	query, args := mysqlCatalogQuery("BASE TABLE").build(filter)
	return queryTables(ctx, db, query, args)
}

func (m *mysqlSourceDB) ListViews(ctx context.Context, db *sql.DB, filter TableFilter) ([]string, error) {
	query, args := mysqlCatalogQuery("VIEW").build(filter)
	return queryQualifiedNames(ctx, db, query, args)
}

// ListColumns ignores dbName: a MySQL schema is a database, so the table's
// own schema already pins the catalog.
func (m *mysqlSourceDB) ListColumns(ctx context.Context, db *sql.DB, _ string, t TableDescriptor) ([]ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH,
		        NUMERIC_PRECISION, NUMERIC_SCALE, ORDINAL_POSITION,
		        CASE WHEN EXTRA LIKE '%VIRTUAL GENERATED%' OR EXTRA LIKE '%STORED GENERATED%'
		             THEN EXTRA ELSE '' END,
		        COLLATION_NAME
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		t.SourceSchema, t.SourceName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := scanCatalogColumns(rows, mysqlTypeFamily)
	if err != nil {
		return nil, err
	}
	widenMySQLBits(cols)
	return cols, nil
}

// widenMySQLBits keeps BIT(1) as a boolean family and moves wider BIT(M)
// columns to numeric(20,0), which holds any unsigned 64-bit value.
// INFORMATION_SCHEMA reports M as NUMERIC_PRECISION.
func widenMySQLBits(cols []ColumnDescriptor) {
	for i := range cols {
		c := &cols[i]
		if c.SourceType != "bit" || c.NumericPrecision == nil || *c.NumericPrecision <= 1 {
			continue
		}
		precision, scale := int64(20), int64(0)
		c.SourceType = "decimal"
		c.NumericPrecision = &precision
		c.NumericScale = &scale
	}
}

// mysqlTypeFamily folds MySQL spellings into mapType families.
func mysqlTypeFamily(dataType string) string {
	switch dataType {
	case "timestamp":
		return "datetime"
	case "float":
		return "real" // single precision in MySQL
	case "double", "double precision":
		return "double"
	case "dec", "fixed":
		return "decimal"
	case "year":
		return "smallint"
	default:
		return dataType
	}
}

func (m *mysqlSourceDB) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}

func (m *mysqlSourceDB) QualifiedTable(_ string, t TableDescriptor) string {
	return m.QuoteIdentifier(t.SourceSchema) + "." + m.QuoteIdentifier(t.SourceName)
}

func (m *mysqlSourceDB) NormalizeValue(val any, dbType string) any {
	switch baseTypeName(dbType) {
	case "DECIMAL":
		if d, ok := parseDecimalPayload(val); ok {
			return d
		}
	case "BIT":
		// big-endian bit payload; "0"/"1" are valid boolean input too
		if b, ok := val.([]byte); ok && len(b) <= 8 {
			var n uint64
			for _, c := range b {
				n = n<<8 | uint64(c)
			}
			return n
		}
	}
	return val
}

func (m *mysqlSourceDB) ExternalExportCommand(opts ExternalExportConfig, dsn, selectSQL, _ string) (externalCommand, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return externalCommand{}, fmt.Errorf("parse mysql dsn: %w", err)
	}

	args := []string{exportProgram(opts, "mysql"), "--batch", "--skip-column-names"}
	if m.charset != "" {
		args = append(args, "--default-character-set="+m.charset)
	}
	switch cfg.Net {
	case "unix":
		args = append(args, "--socket="+cfg.Addr)
	default:
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host, port = cfg.Addr, ""
		}
		if host != "" {
			args = append(args, "--host="+host)
		}
		if port != "" {
			args = append(args, "--port="+port)
		}
	}
	if cfg.User != "" {
		args = append(args, "--user="+cfg.User)
	}
	if cfg.Passwd != "" {
		args = append(args, "--password="+cfg.Passwd)
	}
	if cfg.DBName != "" {
		args = append(args, "--database="+cfg.DBName)
	}
	args = append(args, opts.Args...)
	args = append(args, "--execute="+selectSQL)
	return externalCommand{Args: args, Stdout: true}, nil
}

func (m *mysqlSourceDB) SetCharset(charset string) {
	m.charset = charset
}
