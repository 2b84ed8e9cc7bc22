package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// MigrationConfig holds the full TOML-driven migration configuration.
type MigrationConfig struct {
	Source             SourceConfig `toml:"source"`
	Target             TargetConfig `toml:"target"`
	Schema             string       `toml:"schema"`
	Tables             []string     `toml:"tables"`
	SourceSchemas      []string     `toml:"source_schemas"`
	SchemaOnlyTables   []string     `toml:"schema_only_tables"`
	CreateOnly         bool         `toml:"create_only"`
	DryRun             bool         `toml:"dry_run"`
	ExportDir          string       `toml:"export_dir"`
	KeepExports        bool         `toml:"keep_exports"`
	TempDir            string       `toml:"temp_dir"`
	FallbackOnAnyError bool         `toml:"fallback_on_any_error"`
	EnvFile            string       `toml:"env_file"`
	Values             ValuesConfig `toml:"values"`
	Hooks              HooksConfig  `toml:"hooks"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig identifies the source database engine and connection string.
type SourceConfig struct {
	Type    string               `toml:"type"` // "mssql", "mysql" or "sqlite"
	DSN     string               `toml:"dsn"`
	Charset string               `toml:"charset"` // character set for MySQL connection (default: "utf8mb4")
	Export  ExternalExportConfig `toml:"export"`
}

// ExternalExportConfig configures the bulk-export utility used as fallback.
type ExternalExportConfig struct {
	Command string   `toml:"command"` // default: bcp, mysql or sqlite3
	Unicode bool     `toml:"unicode"` // bcp -w instead of -c
	Args    []string `toml:"args"`
}

type TargetConfig struct {
	DSN string `toml:"dsn"`
}

// ValuesConfig controls how source values are written to the intermediate file.
type ValuesConfig struct {
	SanitizeNullBytes bool `toml:"sanitize_null_bytes"`
	BinaryAsHex       bool `toml:"binary_as_hex"`
}

type HooksConfig struct {
	BeforeAll []string `toml:"before_all"`
	AfterAll  []string `toml:"after_all"`
}

// cliOverrides carries flags given on the command line. Nil fields were not set.
type cliOverrides struct {
	DryRun        *bool
	CreateOnly    *bool
	Tables        []string
	SourceSchemas []string
	SchemaOnly    []string
	TargetSchema  *string
	ExportDir     *string
}

func defaultConfig() MigrationConfig {
	return MigrationConfig{
		Schema:    "public",
		ExportDir: "exports",
		EnvFile:   ".env",
		Source: SourceConfig{
			Export: ExternalExportConfig{Unicode: true},
		},
		Values: ValuesConfig{SanitizeNullBytes: true},
	}
}

// loadConfig reads a TOML config file, applies defaults and command-line
// overrides, loads the env file and validates the result.
func loadConfig(path string, ov cliOverrides) (*MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.loadEnvFile(md.IsDefined("env_file")); err != nil {
		return nil, err
	}
	cfg.Source.DSN = os.ExpandEnv(cfg.Source.DSN)
	cfg.Target.DSN = os.ExpandEnv(cfg.Target.DSN)

	cfg.applyOverrides(ov)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads dotenv variables without overriding the environment.
// A missing default file is fine; a missing file named in the config is not.
func (c *MigrationConfig) loadEnvFile(explicit bool) error {
	if c.EnvFile == "" {
		return nil
	}
	path := c.resolvePath(c.EnvFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env_file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env_file %s: %w", c.EnvFile, err)
	}
	return nil
}

func (c *MigrationConfig) applyOverrides(ov cliOverrides) {
	if ov.DryRun != nil {
		c.DryRun = *ov.DryRun
	}
	if ov.CreateOnly != nil {
		c.CreateOnly = *ov.CreateOnly
	}
	if len(ov.Tables) > 0 {
		c.Tables = ov.Tables
	}
	if len(ov.SourceSchemas) > 0 {
		c.SourceSchemas = ov.SourceSchemas
	}
	if len(ov.SchemaOnly) > 0 {
		c.SchemaOnlyTables = ov.SchemaOnly
	}
	if ov.TargetSchema != nil {
		c.Schema = *ov.TargetSchema
	}
	if ov.ExportDir != nil {
		c.ExportDir = *ov.ExportDir
	}
}

func (c *MigrationConfig) validate() error {
	c.Schema = strings.TrimSpace(c.Schema)
	if c.Schema == "" {
		return fmt.Errorf("schema is required")
	}

	if c.Source.Type == "" {
		return fmt.Errorf("source.type is required (must be mssql, mysql or sqlite)")
	}
	if _, err := newSourceDB(c.Source.Type); err != nil {
		return err
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required")
	}
	if c.Source.Type != "mysql" && c.Source.Charset != "" {
		return fmt.Errorf("source.charset is a MySQL-only option")
	}
	if c.Source.Type == "mysql" && c.Source.Charset == "" {
		c.Source.Charset = "utf8mb4"
	}

	if !c.DryRun && c.Target.DSN == "" {
		return fmt.Errorf("target.dsn is required")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return fmt.Errorf("export_dir must not be empty")
	}
	for _, t := range c.Tables {
		if parseQualifiedName(t).Name == "" {
			return fmt.Errorf("tables must contain table names, got %q", t)
		}
	}
	for _, t := range c.SchemaOnlyTables {
		if parseQualifiedName(t).Name == "" {
			return fmt.Errorf("schema_only_tables must contain table names, got %q", t)
		}
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *MigrationConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// exportDir returns the absolute intermediate file directory.
func (c *MigrationConfig) exportDir() string {
	return c.resolvePath(c.ExportDir)
}

// tempDir returns the directory for normalization temp files; "" selects the
// OS default.
func (c *MigrationConfig) tempDir() string {
	if c.TempDir == "" {
		return ""
	}
	return c.resolvePath(c.TempDir)
}

// tableFilter builds the discovery filter from the include lists.
func (c *MigrationConfig) tableFilter() TableFilter {
	return TableFilter{
		Tables:  parseQualifiedNames(c.Tables),
		Schemas: c.SourceSchemas,
	}
}

func (c *MigrationConfig) cellOptions() cellOptions {
	return cellOptions{
		SanitizeNullBytes: c.Values.SanitizeNullBytes,
		BinaryAsHex:       c.Values.BinaryAsHex,
	}
}
