package main

import (
	"errors"
	"fmt"
	"strings"
)

// MetadataError reports a failed catalog query. No partial schema knowledge
// is used after one.
type MetadataError struct {
	Table string // empty when listing tables
	Err   error
}

func (e *MetadataError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("discover tables: %v", e.Err)
	}
	return fmt.Sprintf("discover columns of %s: %v", e.Table, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// DDLError reports a failed CREATE SCHEMA / CREATE TABLE on the target.
type DDLError struct {
	Table string
	DDL   string
	Err   error
}

func (e *DDLError) Error() string {
	return fmt.Sprintf("create table %s: %v\nDDL: %s", e.Table, e.Err, e.DDL)
}

func (e *DDLError) Unwrap() error { return e.Err }

// ExportEncodingError marks a driver export failure that looks like a
// character set or codec problem. It is the only error recovered locally.
type ExportEncodingError struct {
	Err error
}

func (e *ExportEncodingError) Error() string {
	return fmt.Sprintf("encoding failure: %v", e.Err)
}

func (e *ExportEncodingError) Unwrap() error { return e.Err }

// ExportError reports a row export that could not be completed by any path.
type ExportError struct {
	Table    string
	Exporter string
	Err      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s (%s): %v", e.Table, e.Exporter, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// NormalizationError reports an intermediate file that could not be decoded
// or delimiter-detected.
type NormalizationError struct {
	Path string
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Path, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// LoadError reports a failed COPY. The table's load was rolled back.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RunError aborts a migration. Completed holds the outcomes recorded before
// the failing table.
type RunError struct {
	Table     TableDescriptor
	Stage     string
	Err       error
	Completed []MigrationOutcome
}

func (e *RunError) Error() string {
	if e.Table.SourceName == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("table %s (%s): %v", e.Table.SourceQualified(), e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// encodingErrorMarkers are substrings drivers use when they cannot convert
// between the server's and the client's character representation.
var encodingErrorMarkers = []string{
	"codec",
	"utf-16",
	"utf16",
	"utf-8",
	"utf8",
	"invalid character",
	"character set",
	"charset",
	"collation",
	"encoding",
	"unicode",
	"code page",
	"codepage",
}

// isEncodingError classifies an export failure as encoding-related.
func isEncodingError(err error) bool {
	if err == nil {
		return false
	}
	var encErr *ExportEncodingError
	if errors.As(err, &encErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range encodingErrorMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyExportError wraps encoding-looking failures in ExportEncodingError.
func classifyExportError(err error) error {
	if err == nil || !isEncodingError(err) {
		return err
	}
	var encErr *ExportEncodingError
	if errors.As(err, &encErr) {
		return err
	}
	return &ExportEncodingError{Err: err}
}
