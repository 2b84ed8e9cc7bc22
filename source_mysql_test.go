package main

import (
	"reflect"
	"strings"
	"testing"
)

func TestMySQLSourceOpenDB_InvalidDSN(t *testing.T) {
	src := &mysqlSourceDB{}
	_, err := src.OpenDB("://bad-dsn")
	if err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}

func TestMySQLSourceQuoteIdentifier(t *testing.T) {
	src := &mysqlSourceDB{}
	got := src.QuoteIdentifier("my`table")
	want := "`my``table`"
	if got != want {
		t.Errorf("QuoteIdentifier() = %q, want %q", got, want)
	}
	if got := src.QualifiedTable("ignored", TableDescriptor{SourceSchema: "app", SourceName: "users"}); got != "`app`.`users`" {
		t.Errorf("QualifiedTable() = %q", got)
	}
}

func TestMySQLDSNWithReadOptions(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		charset string
		want    []string
		notWant []string
	}{
		{
			name:    "charset appended",
			dsn:     "root:root@tcp(127.0.0.1:3306)/app",
			charset: "utf8mb4",
			want:    []string{"charset=utf8mb4", "parseTime=true", "interpolateParams=true"},
		},
		{
			name:    "existing charset kept",
			dsn:     "root:root@tcp(127.0.0.1:3306)/app?charset=latin1",
			charset: "utf8mb4",
			want:    []string{"charset=latin1"},
			notWant: []string{"utf8mb4"},
		},
		{
			name: "no charset",
			dsn:  "root:root@tcp(127.0.0.1:3306)/app?timeout=5s",
			want: []string{"timeout=5s", "parseTime=true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mysqlDSNWithReadOptions(tt.dsn, tt.charset)
			if err != nil {
				t.Fatalf("mysqlDSNWithReadOptions() error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN %q missing %q", got, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("DSN %q should not contain %q", got, w)
				}
			}
		})
	}
}

func TestMySQLTypeFamily(t *testing.T) {
	tests := []struct {
		in, family, target string
	}{
		{"timestamp", "datetime", "timestamp"},
		{"float", "real", "real"},
		{"double", "double", "double precision"},
		{"fixed", "decimal", "numeric"},
		{"year", "smallint", "smallint"},
		{"mediumint", "mediumint", "integer"},
		{"json", "json", "text"},
	}
	for _, tt := range tests {
		fam := mysqlTypeFamily(tt.in)
		if fam != tt.family {
			t.Errorf("mysqlTypeFamily(%q) = %q, want %q", tt.in, fam, tt.family)
		}
		if got := mapType(fam, nil, nil, nil); got != tt.target {
			t.Errorf("mapType(%q) = %q, want %q", fam, got, tt.target)
		}
	}
}

func TestMySQLExternalExportCommand(t *testing.T) {
	src := &mysqlSourceDB{charset: "utf8mb4"}
	const sel = "SELECT `id` FROM `app`.`users`"

	cmd, err := src.ExternalExportCommand(ExternalExportConfig{}, "u:p@tcp(db:3307)/app", sel, "/out/app_users.csv")
	if err != nil {
		t.Fatalf("ExternalExportCommand() error: %v", err)
	}
	want := []string{
		"mysql", "--batch", "--skip-column-names", "--default-character-set=utf8mb4",
		"--host=db", "--port=3307", "--user=u", "--password=p", "--database=app",
		"--execute=" + sel,
	}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("Args =\n  %q\nwant\n  %q", cmd.Args, want)
	}
	if !cmd.Stdout {
		t.Error("Stdout = false, want true")
	}

	cmd, err = src.ExternalExportCommand(ExternalExportConfig{}, "u@unix(/run/mysqld.sock)/app", sel, "/out/x.csv")
	if err != nil {
		t.Fatalf("ExternalExportCommand() unix error: %v", err)
	}
	if cmd.Args[4] != "--socket=/run/mysqld.sock" {
		t.Errorf("socket arg = %q", cmd.Args[4])
	}
}

func TestMySQLNormalizeValue(t *testing.T) {
	src := &mysqlSourceDB{}
	got := canonicalCell(src.NormalizeValue([]byte("0.10"), "DECIMAL"), "DECIMAL", cellOptions{})
	if got != "0.10" {
		t.Errorf("decimal = %q, want 0.10", got)
	}
}

func TestMySQLNormalizeValue_Bit(t *testing.T) {
	src := &mysqlSourceDB{}
	cols := []ColumnDescriptor{
		{Name: "active", SourceType: "bit", NumericPrecision: int64p(1)},
		{Name: "flags", SourceType: "bit", NumericPrecision: int64p(16)},
	}
	widenMySQLBits(cols)
	if got := cols[0].TargetType(); got != "boolean" {
		t.Errorf("bit(1) target = %q, want boolean", got)
	}
	if got := cols[1].TargetType(); got != "numeric(20,0)" {
		t.Errorf("bit(16) target = %q, want numeric(20,0)", got)
	}

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"false", []byte{0}, "0"},
		{"true", []byte{1}, "1"},
		{"wide", []byte{0x01, 0x02}, "258"},
		{"all 64 bits", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, "18446744073709551615"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalCell(src.NormalizeValue(tt.in, "BIT"), "BIT", cellOptions{SanitizeNullBytes: true}); got != tt.want {
				t.Errorf("cell = %q, want %q", got, tt.want)
			}
		})
	}
	if got := canonicalCell(src.NormalizeValue(nil, "BIT"), "BIT", cellOptions{}); got != "" {
		t.Errorf("NULL bit cell = %q, want empty", got)
	}
}
