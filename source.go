package main

import (
	"context"
	"database/sql"
	"fmt"
)

// SourceDB abstracts the source engine so the pipeline can read from
// SQL Server, MySQL or SQLite.
type SourceDB interface {
	// Name returns a human-readable name for the source ("SQL Server", "MySQL", "SQLite").
	Name() string

	// OpenDB opens a database handle with driver-specific options.
	OpenDB(dsn string) (*sql.DB, error)

	// CurrentDatabase returns the catalog the handle is connected to.
	CurrentDatabase(ctx context.Context, db *sql.DB) (string, error)

	// ListTables returns base tables ordered by (schema, name). Only the
	// Source* fields of the descriptors are set.
	ListTables(ctx context.Context, db *sql.DB, filter TableFilter) ([]TableDescriptor, error)

	// ListViews returns qualified names of views matching the filter. Views
	// are reported, never migrated.
	ListViews(ctx context.Context, db *sql.DB, filter TableFilter) ([]string, error)

	// ListColumns returns the table's columns ordered by ordinal position.
	ListColumns(ctx context.Context, db *sql.DB, dbName string, t TableDescriptor) ([]ColumnDescriptor, error)

	// QuoteIdentifier quotes a source identifier for use in queries.
	QuoteIdentifier(name string) string

	// QualifiedTable returns the table reference used in the export SELECT.
	QualifiedTable(dbName string, t TableDescriptor) string

	// NormalizeValue converts driver-specific payloads (wire-order GUIDs,
	// decimal byte strings) into the types the cell encoder understands.
	// dbType is the driver's DatabaseTypeName for the column.
	NormalizeValue(val any, dbType string) any

	// ExternalExportCommand builds the bulk-export utility invocation used
	// when the driver path fails.
	ExternalExportCommand(opts ExternalExportConfig, dsn, selectSQL, path string) (externalCommand, error)

	// SetCharset sets the character set for the source connection.
	// For MySQL, this is injected into the DSN. Other sources ignore it.
	SetCharset(charset string)
}

// TableFilter narrows table discovery. Tables wins over Schemas.
type TableFilter struct {
	Tables  []qualifiedName
	Schemas []string
}

// externalCommand is an argv for the external exporter. When Stdout is set
// the program writes rows to standard output and the exporter redirects it
// into the intermediate file. UTF16LE declares the file's encoding.
type externalCommand struct {
	Args    []string
	Stdout  bool
	UTF16LE bool
}

// newSourceDB returns a SourceDB implementation for the given source type.
func newSourceDB(sourceType string) (SourceDB, error) {
	switch sourceType {
	case "mssql", "sqlserver":
		return &mssqlSourceDB{}, nil
	case "mysql":
		return &mysqlSourceDB{charset: "utf8mb4"}, nil
	case "sqlite":
		return &sqliteSourceDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q (must be mssql, mysql or sqlite)", sourceType)
	}
}

func exportProgram(opts ExternalExportConfig, fallback string) string {
	if opts.Command != "" {
		return opts.Command
	}
	return fallback
}
