package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	flagDryRun     bool
	flagCreateOnly bool
	flagTables     []string
	flagSchemas    []string
	flagSchemaOnly []string
	flagTarget     string
	flagExportDir  string
)

var rootCmd = &cobra.Command{
	Use:           "stageferry [config.toml]",
	Short:         "SQL Server, MySQL and SQLite to PostgreSQL migration through staged CSV files",
	Args:          cobra.MaximumNArgs(1),
	RunE:          runMigration,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = versionString()
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "path to migration TOML config file")
	f.BoolVar(&flagDryRun, "dry-run", false, "discover, print DDL and export files without touching the target")
	f.BoolVar(&flagCreateOnly, "create-only", false, "create every table but transfer no rows")
	f.StringSliceVar(&flagTables, "tables", nil, "tables to migrate (schema.table or table), overrides config")
	f.StringSliceVar(&flagSchemas, "source-schema", nil, "source schemas to migrate, overrides config")
	f.StringSliceVar(&flagSchemaOnly, "schema-only-tables", nil, "tables to create without transferring rows, overrides config")
	f.StringVar(&flagTarget, "target-schema", "", "target PostgreSQL schema, overrides config")
	f.StringVar(&flagExportDir, "export-dir", "", "directory for intermediate CSV files, overrides config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var runErr *RunError
		if errors.As(err, &runErr) {
			printSummary(os.Stderr, runErr.Completed)
		}
		os.Exit(1)
	}
}

func overridesFromFlags(cmd *cobra.Command) cliOverrides {
	var ov cliOverrides
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		ov.DryRun = &flagDryRun
	}
	if flags.Changed("create-only") {
		ov.CreateOnly = &flagCreateOnly
	}
	if flags.Changed("tables") {
		ov.Tables = flagTables
	}
	if flags.Changed("source-schema") {
		ov.SourceSchemas = flagSchemas
	}
	if flags.Changed("schema-only-tables") {
		ov.SchemaOnly = flagSchemaOnly
	}
	if flags.Changed("target-schema") {
		ov.TargetSchema = &flagTarget
	}
	if flags.Changed("export-dir") {
		ov.ExportDir = &flagExportDir
	}
	return ov
}

func runMigration(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: stageferry <config.toml> or stageferry --config <config.toml>")
	}

	cfg, err := loadConfig(cfgPath, overridesFromFlags(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	src, err := newSourceDB(cfg.Source.Type)
	if err != nil {
		return err
	}
	src.SetCharset(cfg.Source.Charset)

	log.Printf("stageferry %s: %s -> PostgreSQL", versionString(), src.Name())
	log.Printf(
		"config: schema=%s dry_run=%t create_only=%t export_dir=%s schema_only_tables=%d fallback_on_any_error=%t",
		cfg.Schema, cfg.DryRun, cfg.CreateOnly, cfg.exportDir(), len(cfg.SchemaOnlyTables), cfg.FallbackOnAnyError,
	)

	// 1. Source: one connection, used by one actor at a time
	log.Printf("connecting to %s...", src.Name())
	db, err := src.OpenDB(cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", src.Name(), err)
	}
	dbName, err := src.CurrentDatabase(ctx, db)
	if err != nil {
		return err
	}

	// 2. Target, unless this is a dry run
	var target Target
	if !cfg.DryRun {
		log.Printf("connecting to PostgreSQL...")
		conn, err := pgx.Connect(ctx, cfg.Target.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer conn.Close(context.Background())
		target = &pgTarget{conn: conn}
	} else {
		log.Printf("dry run: target will not be touched")
	}

	// 3. Per-table pipeline
	run := newMigrationRun(cfg, src, db, dbName, target)
	summary, err := run.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, summary.Outcomes)
	log.Printf("migration completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
