package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Target is the PostgreSQL side of a migration.
type Target interface {
	// Exec runs one statement (or a ;-separated batch) outside a transaction.
	Exec(ctx context.Context, sql string) error
	// CopyCSV streams canonical CSV into schema.table in one transaction and
	// returns the number of rows copied.
	CopyCSV(ctx context.Context, schema, table string, cols []string, r io.Reader) (int64, error)
}

// pgTarget is a Target backed by one PostgreSQL connection.
type pgTarget struct {
	conn *pgx.Conn
}

func (t *pgTarget) Exec(ctx context.Context, sql string) error {
	_, err := t.conn.Exec(ctx, sql)
	return err
}

func (t *pgTarget) CopyCSV(ctx context.Context, schema, table string, cols []string, r io.Reader) (int64, error) {
	tx, err := t.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, r, copyStatement(schema, table, cols))
	if err != nil {
		return 0, describePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// copyStatement builds the COPY for the canonical intermediate dialect:
// comma-delimited CSV, no header, empty field = NULL.
func copyStatement(schema, table string, cols []string) string {
	var b strings.Builder
	b.WriteString("COPY ")
	b.WriteString(pgQualified(schema, table))
	if len(cols) > 0 {
		b.WriteString(" (")
		b.WriteString(pgIdentList(cols))
		b.WriteString(")")
	}
	b.WriteString(" FROM STDIN WITH (FORMAT csv, DELIMITER ',', NULL '', HEADER false)")
	return b.String()
}

// describePgError surfaces the server's detail and SQLSTATE, which name the
// offending row and column for COPY failures.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" || pgErr.Where != "" {
			return fmt.Errorf("%w (detail: %s; where: %s; sqlstate %s)", err, pgErr.Detail, pgErr.Where, pgErr.SQLState())
		}
		return fmt.Errorf("%w (sqlstate %s)", err, pgErr.SQLState())
	}
	return err
}

// bulkLoad normalizes an export and copies it into the table's target.
// Temp files from normalization are removed whatever the outcome.
func bulkLoad(ctx context.Context, target Target, t TableDescriptor, exp exportResult, tmpDir string) (int64, error) {
	norm, err := normalizeCSV(exp.Path, len(exp.Columns), exp.UTF16LE, tmpDir)
	defer removeTemps(norm.Temps)
	if err != nil {
		return 0, err
	}
	if norm.Transcoded {
		log.Printf("    transcoded %s from UTF-16LE", exp.Path)
	}
	if norm.Delimiter != ',' {
		log.Printf("    detected %q delimiter in %s", norm.Delimiter, exp.Path)
	}
	if norm.Padded > 0 {
		log.Printf("    padded %d short row(s) to %d fields", norm.Padded, len(exp.Columns))
	}

	f, err := os.Open(norm.Path)
	if err != nil {
		return 0, &LoadError{Table: t.TargetQualified(), Err: err}
	}
	defer f.Close()

	n, err := target.CopyCSV(ctx, t.TargetSchema, t.TargetName, exp.Columns, f)
	if err != nil {
		return 0, &LoadError{Table: t.TargetQualified(), Err: err}
	}
	return n, nil
}
