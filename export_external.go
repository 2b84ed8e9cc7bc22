package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// externalExporter shells out to the source's bulk-export utility.
type externalExporter struct {
	src  SourceDB
	dsn  string
	opts ExternalExportConfig
}

func (e *externalExporter) Export(ctx context.Context, job exportJob) (exportResult, error) {
	res := exportResult{Path: job.Path, Columns: columnNames(job.Columns), Rows: -1, Exporter: "external"}

	cmdSpec, err := e.src.ExternalExportCommand(e.opts, e.dsn, job.SelectSQL, job.Path)
	if err != nil {
		return res, fmt.Errorf("build export command: %w", err)
	}
	if len(cmdSpec.Args) == 0 {
		return res, fmt.Errorf("empty export command")
	}
	if err := os.MkdirAll(filepath.Dir(job.Path), 0o755); err != nil {
		return res, fmt.Errorf("create export dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, cmdSpec.Args[0], cmdSpec.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var out *os.File
	if cmdSpec.Stdout {
		out, err = os.Create(job.Path)
		if err != nil {
			return res, fmt.Errorf("create export file: %w", err)
		}
		defer out.Close()
		cmd.Stdout = out
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return res, fmt.Errorf("%s: %w", filepath.Base(cmdSpec.Args[0]), err)
		}
		return res, fmt.Errorf("%s: %w: %s", filepath.Base(cmdSpec.Args[0]), err, msg)
	}
	if out != nil {
		if err := out.Close(); err != nil {
			return res, fmt.Errorf("close export file: %w", err)
		}
	}
	if _, err := os.Stat(job.Path); err != nil {
		return res, fmt.Errorf("export produced no file: %w", err)
	}
	res.UTF16LE = cmdSpec.UTF16LE
	return res, nil
}
