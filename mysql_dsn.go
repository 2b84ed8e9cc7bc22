package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDSNWithReadOptions returns the DSN the exporter connects with:
// parsed times in UTC, client-side interpolation, and the configured
// charset unless the DSN already names one.
func mysqlDSNWithReadOptions(baseDSN, charset string) (string, error) {
	dsn := baseDSN
	if charset != "" && !strings.Contains(dsn, "charset=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "charset=" + charset
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
