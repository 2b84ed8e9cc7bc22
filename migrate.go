package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// tableState tracks one table through the pipeline.
type tableState int

const (
	stateDiscovered tableState = iota
	stateDDLApplied
	stateTransferred
	stateSchemaOnly
	stateRecorded
)

func (s tableState) String() string {
	switch s {
	case stateDiscovered:
		return "DISCOVERED"
	case stateDDLApplied:
		return "DDL_APPLIED"
	case stateTransferred:
		return "TRANSFERRED"
	case stateSchemaOnly:
		return "SCHEMA_ONLY"
	case stateRecorded:
		return "RECORDED"
	default:
		return fmt.Sprintf("tableState(%d)", int(s))
	}
}

// tableTransitions lists the states reachable from each state. RECORDED is terminal.
var tableTransitions = map[tableState][]tableState{
	stateDiscovered:  {stateDDLApplied},
	stateDDLApplied:  {stateTransferred, stateSchemaOnly},
	stateTransferred: {stateRecorded},
	stateSchemaOnly:  {stateRecorded},
}

type tableRun struct {
	table TableDescriptor
	state tableState
}

func (r *tableRun) advance(next tableState) error {
	for _, s := range tableTransitions[r.state] {
		if s == next {
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("table %s: illegal transition %s -> %s", r.table.SourceQualified(), r.state, next)
}

// schemaOnlySet matches tables by qualified or bare name, case-insensitively.
type schemaOnlySet map[string]struct{}

func newSchemaOnlySet(entries []string) schemaOnlySet {
	set := make(schemaOnlySet, len(entries))
	for _, e := range entries {
		q := parseQualifiedName(e)
		if q.Name == "" {
			continue
		}
		key := strings.ToLower(q.Name)
		if q.Schema != "" {
			key = strings.ToLower(q.Schema) + "." + key
		}
		set[key] = struct{}{}
	}
	return set
}

func (s schemaOnlySet) contains(t TableDescriptor) bool {
	if _, ok := s[strings.ToLower(t.SourceSchema+"."+t.SourceName)]; ok {
		return true
	}
	_, ok := s[strings.ToLower(t.SourceName)]
	return ok
}

// migrationRun sequences discovery, DDL, export and load for every table.
type migrationRun struct {
	cfg        *MigrationConfig
	src        SourceDB
	in         *introspector
	exporter   Exporter
	target     Target // nil in dry run
	schemaOnly schemaOnlySet
	summary    Summary
}

func newMigrationRun(cfg *MigrationConfig, src SourceDB, db *sql.DB, dbName string, target Target) *migrationRun {
	var exporter Exporter = &fallbackExporter{
		primary:    &driverExporter{src: src, db: db, opts: cfg.cellOptions()},
		external:   &externalExporter{src: src, dsn: cfg.Source.DSN, opts: cfg.Source.Export},
		onAnyError: cfg.FallbackOnAnyError,
	}
	return &migrationRun{
		cfg:        cfg,
		src:        src,
		in:         &introspector{src: src, db: db, dbName: dbName, targetSchema: cfg.Schema},
		exporter:   exporter,
		target:     target,
		schemaOnly: newSchemaOnlySet(cfg.SchemaOnlyTables),
	}
}

// policyFor returns the transfer policy of a table.
func (m *migrationRun) policyFor(t TableDescriptor) TransferPolicy {
	if m.cfg.CreateOnly || m.schemaOnly.contains(t) {
		return PolicySchemaOnly
	}
	return PolicyFull
}

// Run migrates every discovered table in order. The first failure aborts the
// run with a *RunError carrying the outcomes recorded before it.
func (m *migrationRun) Run(ctx context.Context) (*Summary, error) {
	filter := m.cfg.tableFilter()

	log.Printf("discovering tables...")
	tables, err := m.in.Tables(ctx, filter)
	if err != nil {
		return &m.summary, m.fail(TableDescriptor{}, "discover", err)
	}
	log.Printf("found %d tables", len(tables))

	if views, err := m.in.Views(ctx, filter); err != nil {
		log.Printf("  WARN: list views: %v", err)
	} else {
		for _, w := range skippedObjectWarnings(&skippedObjects{Views: views}) {
			log.Printf("  WARN: %s", w)
		}
	}

	if m.target != nil {
		if err := runHooks(ctx, m.target, m.cfg, m.cfg.Hooks.BeforeAll, "before_all"); err != nil {
			return &m.summary, m.fail(TableDescriptor{}, "before_all hooks", err)
		}
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return &m.summary, m.fail(t, "discover", err)
		}
		if err := m.migrateTable(ctx, t); err != nil {
			return &m.summary, err
		}
	}

	if m.target != nil {
		if err := runHooks(ctx, m.target, m.cfg, m.cfg.Hooks.AfterAll, "after_all"); err != nil {
			return &m.summary, m.fail(TableDescriptor{}, "after_all hooks", err)
		}
	}
	return &m.summary, nil
}

func (m *migrationRun) migrateTable(ctx context.Context, t TableDescriptor) error {
	run := &tableRun{table: t, state: stateDiscovered}

	cols, err := m.in.ColumnsOf(ctx, t)
	if err != nil {
		return m.fail(t, "discover", err)
	}
	log.Printf("  %s -> %s (%d cols)", t.SourceQualified(), t.TargetQualified(), len(cols))
	for _, w := range textFallbackWarnings(t, cols) {
		log.Printf("    WARN: %s", w)
	}
	for _, w := range generatedColumnWarnings(t, cols) {
		log.Printf("    WARN: %s", w)
	}
	for _, w := range collationWarnings(t, cols) {
		log.Printf("    WARN: %s", w)
	}

	ddl := ddlFor(t.TargetSchema, t.TargetName, cols)
	if m.target == nil {
		log.Printf("    [dry-run] %s", strings.ReplaceAll(ddl, "\n", " "))
	} else if err := applyDDL(ctx, m.target, t, ddl); err != nil {
		return m.fail(t, "ddl", err)
	}
	if err := run.advance(stateDDLApplied); err != nil {
		return m.fail(t, "ddl", err)
	}

	outcome := MigrationOutcome{Table: t}
	if m.policyFor(t) == PolicySchemaOnly {
		log.Printf("    schema-only: rows not transferred")
		outcome.Result = ResultSchemaOnly
		if err := run.advance(stateSchemaOnly); err != nil {
			return m.fail(t, "policy", err)
		}
	} else {
		if err := m.transfer(ctx, t, cols, &outcome); err != nil {
			return err
		}
		if err := run.advance(stateTransferred); err != nil {
			return m.fail(t, "load", err)
		}
	}

	if err := run.advance(stateRecorded); err != nil {
		return m.fail(t, "record", err)
	}
	m.summary.record(outcome)
	return nil
}

func (m *migrationRun) transfer(ctx context.Context, t TableDescriptor, cols []ColumnDescriptor, outcome *MigrationOutcome) error {
	job := exportJob{
		Table:     t,
		Columns:   cols,
		SelectSQL: buildSelect(m.src, m.in.dbName, t, cols),
		Path:      exportPath(m.cfg.exportDir(), t),
	}
	if m.target != nil && !m.cfg.KeepExports {
		defer removeTemps([]string{job.Path})
	}
	exp, err := m.exporter.Export(ctx, job)
	if err != nil {
		return m.fail(t, "export", err)
	}
	if exp.Rows >= 0 {
		log.Printf("    exported %d rows to %s (%s)", exp.Rows, exp.Path, exp.Exporter)
	} else {
		log.Printf("    exported to %s (%s)", exp.Path, exp.Exporter)
	}

	outcome.Result = ResultTransferred
	outcome.Path = exp.Path
	outcome.Exporter = exp.Exporter
	if m.target == nil {
		log.Printf("    [dry-run] COPY skipped")
		return nil
	}

	n, err := bulkLoad(ctx, m.target, t, exp, m.cfg.tempDir())
	if err != nil {
		return m.fail(t, "load", err)
	}
	log.Printf("    loaded %d rows", n)
	outcome.Rows = n
	return nil
}

func (m *migrationRun) fail(t TableDescriptor, stage string, err error) error {
	return &RunError{Table: t, Stage: stage, Err: err, Completed: m.summary.completed()}
}
