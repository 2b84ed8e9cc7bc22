package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiterCandidates in preference order.
var delimiterCandidates = []rune{',', '\t', '|', ';'}

// normalizeResult describes the file handed to the loader.
type normalizeResult struct {
	Path       string
	Temps      []string // files to remove once the table is loaded
	Delimiter  rune     // delimiter detected in the source file
	Transcoded bool
	Padded     int // rows padded to the expected width
}

// normalizeCSV makes path canonical for COPY: UTF-8, comma-delimited, no
// BOM, and at least expected fields per row. A file that already is canonical
// is returned as is. declaredUTF16 forces transcoding for exporters whose
// output encoding is known; otherwise the content decides.
func normalizeCSV(path string, expected int, declaredUTF16 bool, tmpDir string) (normalizeResult, error) {
	res := normalizeResult{Path: path, Delimiter: ','}

	utf16 := declaredUTF16
	if !utf16 {
		var err error
		if utf16, err = needsUTF16Transcode(path); err != nil {
			return res, &NormalizationError{Path: path, Err: err}
		}
	}
	if utf16 {
		conv, err := transcodeUTF16LE(path, tmpDir)
		if err != nil {
			return res, &NormalizationError{Path: path, Err: err}
		}
		res.Temps = append(res.Temps, conv)
		res.Path = conv
		res.Transcoded = true
	}

	hasBOM, err := startsWithBOM(res.Path)
	if err != nil {
		return res, &NormalizationError{Path: path, Err: err}
	}

	delim, fields, err := detectDelimiter(res.Path, expected)
	if errors.Is(err, io.EOF) {
		// no records, but blank lines may still be rows
		if !hasBOM {
			return res, nil
		}
		delim, err = ',', nil
	}
	if err != nil {
		return res, &NormalizationError{Path: path, Err: err}
	}
	res.Delimiter = delim
	if delim == ',' && fields == expected && !hasBOM {
		short, err := hasShortRows(res.Path, expected)
		if err != nil {
			return res, &NormalizationError{Path: path, Err: err}
		}
		if !short {
			return res, nil
		}
	}

	out, padded, err := rewriteCSV(res.Path, delim, expected, tmpDir)
	if err != nil {
		return res, &NormalizationError{Path: path, Err: err}
	}
	res.Temps = append(res.Temps, out)
	res.Path = out
	res.Padded = padded
	return res, nil
}

// needsUTF16Transcode reports whether path is not valid UTF-8, or is valid
// only because its text is ASCII stored as UTF-16LE.
func needsUTF16Transcode(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, err
	}
	if looksUTF16LE(head[:n]) {
		return true, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}

	_, err = io.Copy(io.Discard, transform.NewReader(f, encoding.UTF8Validator))
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return true, nil
	}
	return false, err
}

const sniffLen = 4096

// looksUTF16LE spots UTF-16LE text that also passes as UTF-8: no NULs at
// even positions, and either NULs in at least half of the odd ones (mostly
// ASCII) or a UTF-16LE line feed.
func looksUTF16LE(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	var oddNUL, evenNUL int
	for i, c := range b {
		if c != 0 {
			continue
		}
		if i%2 == 1 {
			oddNUL++
		} else {
			evenNUL++
		}
	}
	if evenNUL > 0 || oddNUL == 0 {
		return false
	}
	return oddNUL*2 >= len(b)/2 || bytes.Contains(b, []byte("\n\x00"))
}

// transcodeUTF16LE rewrites path as UTF-8. A leading BOM, either order, wins
// over the little-endian default.
func transcodeUTF16LE(path, tmpDir string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(tmpDir, "pg_convert_*.csv")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	if _, err := io.Copy(out, transform.NewReader(in, dec)); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("transcode utf-16le: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func startsWithBOM(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(utf8BOM))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, err
	}
	return bytes.Equal(head[:n], utf8BOM), nil
}

// openCSV opens path for reading with the BOM skipped.
func openCSV(path string, delim rune) (*os.File, *csv.Reader, error) {
	f, r, _, err := openCountedCSV(path, delim)
	return f, r, err
}

func openCountedCSV(path string, delim rune) (*os.File, *csv.Reader, *lineCounter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	lc := &lineCounter{r: f}
	br := bufio.NewReader(lc)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
		lc.skipped = len(utf8BOM)
	}
	r := csv.NewReader(br)
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return f, r, lc, nil
}

// lineCounter counts the physical lines read through it.
type lineCounter struct {
	r        io.Reader
	newlines int
	tail     int // bytes after the last newline
	skipped  int // leading BOM bytes not part of any line
}

func (c *lineCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.newlines += bytes.Count(p[:n], []byte{'\n'})
		if i := bytes.LastIndexByte(p[:n], '\n'); i >= 0 {
			c.tail = n - i - 1
		} else {
			c.tail += n
		}
	}
	return n, err
}

// lines is the physical line count once the input is exhausted.
func (c *lineCounter) lines() int {
	tail := c.tail
	if c.newlines == 0 {
		tail -= c.skipped
	}
	if tail > 0 {
		return c.newlines + 1
	}
	return c.newlines
}

// recordReader yields every physical row of a CSV file. encoding/csv skips
// blank lines; here each one comes back as a single empty field, the way
// COPY reads it.
type recordReader struct {
	r       *csv.Reader
	lc      *lineCounter
	prevEnd int // last physical line consumed
	blanks  int // blank rows still owed before next
	next    []string
	eof     bool
}

func openRecords(path string, delim rune) (*os.File, *recordReader, error) {
	f, r, lc, err := openCountedCSV(path, delim)
	if err != nil {
		return nil, nil, err
	}
	return f, &recordReader{r: r, lc: lc}, nil
}

func (rr *recordReader) Read() ([]string, error) {
	if rr.blanks > 0 {
		rr.blanks--
		return []string{""}, nil
	}
	if rr.next != nil {
		rec := rr.next
		rr.next = nil
		return rec, nil
	}
	if rr.eof {
		return nil, io.EOF
	}

	rec, err := rr.r.Read()
	if errors.Is(err, io.EOF) {
		rr.eof = true
		if trailing := rr.lc.lines() - rr.prevEnd; trailing > 0 {
			rr.prevEnd += trailing
			rr.blanks = trailing - 1
			return []string{""}, nil
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	start, _ := rr.r.FieldPos(0)
	last := len(rec) - 1
	end, _ := rr.r.FieldPos(last)
	end += strings.Count(rec[last], "\n")
	skipped := start - rr.prevEnd - 1
	rr.prevEnd = end
	if skipped > 0 {
		rr.blanks = skipped - 1
		rr.next = rec
		return []string{""}, nil
	}
	return rec, nil
}

// detectDelimiter parses the first record once per candidate. The first
// candidate giving exactly expected fields wins; otherwise the one giving the
// most fields. io.EOF means the file has no records.
func detectDelimiter(path string, expected int) (rune, int, error) {
	var (
		best      rune
		bestCount = -1
		lastErr   error
	)
	for _, delim := range delimiterCandidates {
		n, err := firstRecordWidth(path, delim)
		if errors.Is(err, io.EOF) {
			return ',', 0, io.EOF
		}
		if err != nil {
			lastErr = err
			continue
		}
		if n == expected {
			return delim, n, nil
		}
		if n > bestCount {
			best, bestCount = delim, n
		}
	}
	if bestCount < 0 {
		return 0, 0, fmt.Errorf("no delimiter candidate parses the first record: %w", lastErr)
	}
	return best, bestCount, nil
}

func firstRecordWidth(path string, delim rune) (int, error) {
	f, r, err := openCSV(path, delim)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rec, err := r.Read()
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

func hasShortRows(path string, expected int) (bool, error) {
	f, r, err := openRecords(path, ',')
	if err != nil {
		return false, err
	}
	defer f.Close()

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if len(rec) < expected {
			return true, nil
		}
	}
}

func rewriteCSV(path string, delim rune, expected int, tmpDir string) (string, int, error) {
	in, r, err := openRecords(path, delim)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.CreateTemp(tmpDir, "pg_normalized_*.csv")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (string, int, error) {
		out.Close()
		os.Remove(out.Name())
		return "", 0, err
	}

	bw := bufio.NewWriter(out)
	w := csv.NewWriter(bw)
	padded := 0
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("read record %d: %w", line, err))
		}
		if len(rec) < expected {
			rec = append(rec, make([]string, expected-len(rec))...)
			padded++
		}
		if err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("write record %d: %w", line, err))
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", 0, err
	}
	return out.Name(), padded, nil
}

// removeTemps deletes normalization temp files. Failures are ignored.
func removeTemps(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
