//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func connectTestPostgres(t *testing.T, schema string) *pgx.Conn {
	t.Helper()
	pgDSN := os.Getenv("POSTGRES_DSN")
	if pgDSN == "" {
		t.Skip("POSTGRES_DSN env var required")
	}
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, pgDSN)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(func() { conn.Close(context.Background()) })

	_, _ = conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgIdent(schema)))
	t.Cleanup(func() {
		c, err := pgx.Connect(context.Background(), pgDSN)
		if err != nil {
			return
		}
		defer c.Close(context.Background())
		c.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgIdent(schema)))
	})
	return conn
}

func TestIntegration_SQLite(t *testing.T) {
	const pgSchema = "inttest_stageferry_sqlite"
	conn := connectTestPostgres(t, pgSchema)
	ctx := context.Background()

	dbPath := newTestSQLite(t,
		`CREATE TABLE Orders (id INT, amount DECIMAL(10,2), created DATETIME, ref TEXT)`,
		`INSERT INTO Orders VALUES (1, 19.99, '2024-01-01T00:00:00', '6f9619ff-8b86-d011-b42d-00c04fc964ff')`,
		`INSERT INTO Orders VALUES (2, NULL, NULL, NULL)`,
		`CREATE TABLE Sensitive (id INT, secret TEXT)`,
		`INSERT INTO Sensitive VALUES (1, 'hunter2')`,
		`CREATE TABLE "select" ("from" TEXT, "Mixed Case" INT)`,
		`INSERT INTO "select" VALUES ('a,"b"', 3)`,
	)

	cfg := testConfig(t, dbPath)
	cfg.Schema = pgSchema
	cfg.SchemaOnlyTables = []string{"sensitive"}

	src, db := openTestSource(t, dbPath)
	run := newMigrationRun(cfg, src, db, sqliteSchema, &pgTarget{conn: conn})
	summary, err := run.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(summary.Outcomes) != 3 {
		t.Fatalf("outcomes = %v", summary.Outcomes)
	}

	var (
		id      int32
		amount  string
		created time.Time
	)
	err = conn.QueryRow(ctx, fmt.Sprintf(`SELECT id, amount::text, created FROM %s WHERE id = 1`, pgQualified(pgSchema, "Orders"))).
		Scan(&id, &amount, &created)
	if err != nil {
		t.Fatalf("query Orders: %v", err)
	}
	if amount != "19.99" {
		t.Errorf("amount = %q, want 19.99", amount)
	}
	if !created.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %v", created)
	}

	var nullAmount sql.NullString
	if err := conn.QueryRow(ctx, fmt.Sprintf(`SELECT amount::text FROM %s WHERE id = 2`, pgQualified(pgSchema, "Orders"))).Scan(&nullAmount); err != nil {
		t.Fatalf("query null row: %v", err)
	}
	if nullAmount.Valid {
		t.Errorf("amount = %q, want NULL", nullAmount.String)
	}

	var sensitiveRows int
	if err := conn.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, pgQualified(pgSchema, "Sensitive"))).Scan(&sensitiveRows); err != nil {
		t.Fatalf("query Sensitive: %v", err)
	}
	if sensitiveRows != 0 {
		t.Errorf("Sensitive rows = %d, want 0", sensitiveRows)
	}

	var from string
	var mixed int32
	if err := conn.QueryRow(ctx, fmt.Sprintf(`SELECT "from", "Mixed Case" FROM %s`, pgQualified(pgSchema, "select"))).Scan(&from, &mixed); err != nil {
		t.Fatalf("query reserved-word table: %v", err)
	}
	if from != `a,"b"` || mixed != 3 {
		t.Errorf("row = (%q, %d)", from, mixed)
	}
}

func TestIntegration_DDLIdempotent(t *testing.T) {
	const pgSchema = "inttest_stageferry_ddl"
	conn := connectTestPostgres(t, pgSchema)
	ctx := context.Background()
	target := &pgTarget{conn: conn}

	tbl := TableDescriptor{SourceSchema: "dbo", SourceName: "Orders", TargetSchema: pgSchema, TargetName: "Orders"}
	ddl := ddlFor(pgSchema, "Orders", ordersColumns())
	for i := 0; i < 2; i++ {
		if err := applyDDL(ctx, target, tbl, ddl); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}
	empty := ddlFor(pgSchema, "Empty", nil)
	if err := applyDDL(ctx, target, tbl, empty); err != nil {
		t.Fatalf("apply synthetic: %v", err)
	}

	var n int
	err := conn.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = $1`, pgSchema).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("tables = %d, want 2", n)
	}
}

func TestIntegration_CopyRollsBack(t *testing.T) {
	const pgSchema = "inttest_stageferry_copy"
	conn := connectTestPostgres(t, pgSchema)
	ctx := context.Background()
	target := &pgTarget{conn: conn}

	tbl := TableDescriptor{SourceSchema: "dbo", SourceName: "T", TargetSchema: pgSchema, TargetName: "T"}
	cols := []ColumnDescriptor{{Name: "id", SourceType: "int", Ordinal: 1}}
	if err := applyDDL(ctx, target, tbl, ddlFor(pgSchema, "T", cols)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "dbo_T.csv")
	if err := os.WriteFile(path, []byte("1\nnot-a-number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := bulkLoad(ctx, target, tbl, exportResult{Path: path, Columns: []string{"id"}}, dir); err == nil {
		t.Fatal("expected LoadError")
	}

	var n int
	if err := conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", pgQualified(pgSchema, "T"))).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rows after failed COPY = %d, want 0", n)
	}
}

func TestIntegration_MSSQL(t *testing.T) {
	mssqlDSN := os.Getenv("MSSQL_DSN")
	if mssqlDSN == "" {
		t.Skip("MSSQL_DSN env var required")
	}
	const pgSchema = "inttest_stageferry_mssql"
	conn := connectTestPostgres(t, pgSchema)
	ctx := context.Background()

	src := &mssqlSourceDB{}
	db, err := src.OpenDB(mssqlDSN)
	if err != nil {
		t.Fatalf("open mssql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	seed := []string{
		`IF OBJECT_ID('dbo.StageferryOrders', 'U') IS NOT NULL DROP TABLE dbo.StageferryOrders`,
		`CREATE TABLE dbo.StageferryOrders (
			id int, amount decimal(10,2), created datetime, ref uniqueidentifier,
			price money, note nvarchar(50), payload varbinary(10))`,
		`INSERT INTO dbo.StageferryOrders VALUES
			(1, 19.99, '2024-01-01T00:00:00', '6F9619FF-8B86-D011-B42D-00C04FC964FF', 12.34, N'Grüße', 0xDEADBEEF),
			(2, NULL, NULL, NULL, NULL, NULL, NULL)`,
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	t.Cleanup(func() { db.Exec(`DROP TABLE IF EXISTS dbo.StageferryOrders`) })

	dbName, err := src.CurrentDatabase(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.Source.Type = "mssql"
	cfg.Source.DSN = mssqlDSN
	cfg.Schema = pgSchema
	cfg.Tables = []string{"dbo.StageferryOrders"}
	cfg.ExportDir = t.TempDir()
	cfg.configDir = t.TempDir()

	summary, err := newMigrationRun(&cfg, src, db, dbName, &pgTarget{conn: conn}).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(summary.Outcomes) != 1 || summary.Outcomes[0].Rows != 2 {
		t.Fatalf("outcomes = %v", summary.Outcomes)
	}

	var amount, ref, price, note string
	err = conn.QueryRow(ctx, fmt.Sprintf(`SELECT amount::text, ref::text, price::text, note FROM %s WHERE id = 1`,
		pgQualified(pgSchema, "StageferryOrders"))).Scan(&amount, &ref, &price, &note)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if amount != "19.99" || ref != "6f9619ff-8b86-d011-b42d-00c04fc964ff" || price != "12.3400" || note != "Grüße" {
		t.Errorf("row = (%s, %s, %s, %s)", amount, ref, price, note)
	}
}
