package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// exportJob describes one table's row export.
type exportJob struct {
	Table     TableDescriptor
	Columns   []ColumnDescriptor
	SelectSQL string
	Path      string
}

// exportResult is what every export path hands to the loader.
type exportResult struct {
	Path     string
	Columns  []string // ordinal order; also the COPY column list
	Rows     int64    // -1 when the exporter cannot count rows
	Exporter string
	UTF16LE  bool // file is known to be UTF-16LE
}

// Exporter writes a table's rows into an intermediate file.
type Exporter interface {
	Export(ctx context.Context, job exportJob) (exportResult, error)
}

// driverExporter reads rows through database/sql and writes canonical CSV.
type driverExporter struct {
	src  SourceDB
	db   *sql.DB
	opts cellOptions
}

func (e *driverExporter) Export(ctx context.Context, job exportJob) (exportResult, error) {
	res := exportResult{Path: job.Path, Columns: columnNames(job.Columns), Exporter: "driver"}

	if err := os.MkdirAll(filepath.Dir(job.Path), 0o755); err != nil {
		return res, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(job.Path)
	if err != nil {
		return res, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if len(job.Columns) == 0 {
		return res, f.Close()
	}

	n, err := e.writeRows(ctx, job, f)
	if err != nil {
		return res, classifyExportError(err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("close export file: %w", err)
	}
	res.Rows = n
	return res, nil
}

func (e *driverExporter) writeRows(ctx context.Context, job exportJob, f *os.File) (int64, error) {
	rows, err := e.db.QueryContext(ctx, job.SelectSQL)
	if err != nil {
		return 0, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return 0, fmt.Errorf("column types: %w", err)
	}
	if len(colTypes) != len(job.Columns) {
		return 0, fmt.Errorf("query returned %d columns, catalog lists %d", len(colTypes), len(job.Columns))
	}
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		dbTypes[i] = ct.DatabaseTypeName()
	}

	w := csv.NewWriter(f)
	vals := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(colTypes))

	var n int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan row %d: %w", n+1, err)
		}
		for i, v := range vals {
			record[i] = canonicalCell(e.src.NormalizeValue(v, dbTypes[i]), dbTypes[i], e.opts)
		}
		if err := w.Write(record); err != nil {
			return n, fmt.Errorf("write row %d: %w", n+1, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("read rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

// fallbackExporter runs the driver path and, when it fails with an
// encoding-classified error (or always, if forced), the external exporter.
type fallbackExporter struct {
	primary    Exporter
	external   Exporter
	onAnyError bool
}

func (e *fallbackExporter) Export(ctx context.Context, job exportJob) (exportResult, error) {
	res, err := e.primary.Export(ctx, job)
	if err == nil {
		return res, nil
	}
	table := job.Table.SourceQualified()
	if e.external == nil || (!e.onAnyError && !isEncodingError(err)) {
		return exportResult{}, &ExportError{Table: table, Exporter: res.Exporter, Err: err}
	}

	log.Printf("    WARN: driver export of %s failed: %v", table, err)
	log.Printf("    falling back to external exporter")
	res, xerr := e.external.Export(ctx, job)
	if xerr != nil {
		return exportResult{}, &ExportError{
			Table:    table,
			Exporter: "external",
			Err:      fmt.Errorf("%w (driver export failed first: %v)", xerr, err),
		}
	}
	return res, nil
}
