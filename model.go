package main

import "fmt"

// TableDescriptor identifies one migration unit. Identity is
// (SourceSchema, SourceName).
type TableDescriptor struct {
	SourceSchema string
	SourceName   string
	TargetSchema string
	TargetName   string
}

// SourceQualified returns "schema.table" as seen on the source.
func (t TableDescriptor) SourceQualified() string {
	return t.SourceSchema + "." + t.SourceName
}

// TargetQualified returns "schema.table" as created on the target.
func (t TableDescriptor) TargetQualified() string {
	return t.TargetSchema + "." + t.TargetName
}

// ColumnDescriptor is a single source column read from the catalog.
type ColumnDescriptor struct {
	Name             string
	SourceType       string // dialect-normalized family fed to mapType, e.g. "decimal"
	DeclaredType     string // type as spelled in the source catalog
	CharMaxLength    *int64
	NumericPrecision *int64
	NumericScale     *int64
	Ordinal          int
	Generated        string // computed/generated column kind, "" for plain columns
	Collation        string
}

// TargetType returns the PostgreSQL type for the column.
func (c ColumnDescriptor) TargetType() string {
	return mapType(c.SourceType, c.CharMaxLength, c.NumericPrecision, c.NumericScale)
}

func columnNames(cols []ColumnDescriptor) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// TransferPolicy decides whether a table's rows are moved.
type TransferPolicy int

const (
	PolicyFull TransferPolicy = iota
	PolicySchemaOnly
)

func (p TransferPolicy) String() string {
	switch p {
	case PolicyFull:
		return "full"
	case PolicySchemaOnly:
		return "schema-only"
	default:
		return fmt.Sprintf("TransferPolicy(%d)", int(p))
	}
}

// OutcomeResult is the terminal result recorded for a table.
type OutcomeResult int

const (
	ResultTransferred OutcomeResult = iota
	ResultSchemaOnly
)

// MigrationOutcome is one summary entry.
type MigrationOutcome struct {
	Table    TableDescriptor
	Result   OutcomeResult
	Path     string // intermediate file, set when Result is ResultTransferred
	Rows     int64  // rows reported by COPY; 0 in dry-run
	Exporter string // "driver" or "external"
}

func (o MigrationOutcome) String() string {
	if o.Result == ResultSchemaOnly {
		return fmt.Sprintf("%s -> (schema-only)", o.Table.SourceQualified())
	}
	return fmt.Sprintf("%s -> %s (%d rows, %s export)", o.Table.SourceQualified(), o.Path, o.Rows, o.Exporter)
}

// Summary is the append-only record of processed tables.
type Summary struct {
	Outcomes []MigrationOutcome
}

func (s *Summary) record(o MigrationOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// completed returns a copy of the outcomes recorded so far.
func (s *Summary) completed() []MigrationOutcome {
	return append([]MigrationOutcome(nil), s.Outcomes...)
}
