// Package importer loads delimited text files into a table through a
// session.
//
// The importer auto-detects the delimiter and the header row, infers a
// column type per column from a sample of the data, optionally creates the
// target table, and inserts the rows in multi-row INSERT statements inside
// one transaction. Every cell travels as an encoded literal, so the same
// quoting rules as for any other statement apply: text containing a double
// quote cannot be imported.
//
// Example:
//
//	f, _ := os.Open("data.csv")
//	res, err := importer.ImportCSV(ctx, sess, "mytable", f, nil)
//	fmt.Printf("imported %d rows with %d columns\n", res.RowsInserted, len(res.ColumnNames))
package importer

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/SimonWaldherr/tinyodbc/internal/session"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// ============================================================================
// Public API Types
// ============================================================================

// Execer runs one statement with positional parameters. *session.Session
// satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, params []value.Value) (session.ExecResult, error)
}

// Options configures the importer. All fields are optional.
type Options struct {
	// BatchSize is the number of rows per INSERT statement (default 100).
	BatchSize int

	// NullLiterals are treated as SQL NULL (case-insensitive, trimmed).
	// Defaults: "", "null", "na", "n/a", "none", "#n/a"
	NullLiterals []string

	// SkipCreate disables CREATE TABLE IF NOT EXISTS with inferred types.
	SkipCreate bool

	// Truncate deletes all rows of the table before inserting.
	Truncate bool

	// HeaderMode is "auto" (default), "present" or "absent". Without a
	// header, columns are named col_1, col_2, ...
	HeaderMode string

	// DelimiterCandidates tested during detection. Default: , ; \t |
	DelimiterCandidates []rune

	// SampleRecords caps the records used for detection (default 500).
	SampleRecords int

	// StrictTypes fails the import on the first cell that does not match
	// its column type. Otherwise the row is skipped and reported.
	StrictTypes bool
}

// Result describes a finished import.
type Result struct {
	RowsInserted int64
	RowsSkipped  int64
	Delimiter    rune
	HadHeader    bool
	ColumnNames  []string
	ColumnTypes  []ColType
	// Errors lists the skipped rows and why.
	Errors []string
}

func applyDefaults(o *Options) {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if len(o.NullLiterals) == 0 {
		o.NullLiterals = []string{"", "null", "na", "n/a", "none", "#n/a"}
	}
	if o.HeaderMode == "" {
		o.HeaderMode = "auto"
	}
	if len(o.DelimiterCandidates) == 0 {
		o.DelimiterCandidates = []rune{',', ';', '\t', '|'}
	}
	if o.SampleRecords <= 0 {
		o.SampleRecords = 500
	}
}

// ============================================================================
// CSV/TSV Import
// ============================================================================

// ImportCSV reads delimited data from r and inserts it into table. Input
// may be gzip compressed and may start with a UTF-8 or UTF-16 byte order
// mark. A nil opts uses the defaults.
func ImportCSV(ctx context.Context, db Execer, table string, r io.Reader, opts *Options) (*Result, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	applyDefaults(&o)

	name := sanitizeName(table)
	if name == "" {
		return nil, fmt.Errorf("tinyodbc: import needs a table name")
	}

	data, err := io.ReadAll(transform.NewReader(maybeGzip(r), unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("tinyodbc: read import data: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("tinyodbc: import data is empty")
	}

	res := &Result{Delimiter: detectDelimiter(data, o.DelimiterCandidates, o.SampleRecords)}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = res.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tinyodbc: parse import data: %w", err)
	}

	res.HadHeader = decideHeader(records, o.HeaderMode)
	body := records
	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}
	if res.HadHeader {
		res.ColumnNames = sanitizeColumnNames(records[0], width)
		body = records[1:]
	} else {
		res.ColumnNames = generateColumnNames(width)
	}
	res.ColumnTypes = inferColumnTypes(body[:min(len(body), o.SampleRecords)], width, o.NullLiterals)

	if !o.SkipCreate {
		if _, err := db.Exec(ctx, createStatement(name, res.ColumnNames, res.ColumnTypes), nil); err != nil {
			return res, fmt.Errorf("tinyodbc: create table %s: %w", name, err)
		}
	}

	if _, err := db.Exec(ctx, "begin", nil); err != nil {
		return res, err
	}
	if err := insertAll(ctx, db, name, body, &o, res); err != nil {
		if _, rbErr := db.Exec(ctx, "rollback", nil); rbErr != nil {
			return res, fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		res.RowsInserted = 0
		return res, err
	}
	if _, err := db.Exec(ctx, "commit", nil); err != nil {
		return res, err
	}
	return res, nil
}

func insertAll(ctx context.Context, db Execer, table string, body [][]string, o *Options, res *Result) error {
	if o.Truncate {
		if _, err := db.Exec(ctx, "delete from "+table, nil); err != nil {
			return fmt.Errorf("tinyodbc: truncate %s: %w", table, err)
		}
	}

	head := "insert into " + table + " (" + strings.Join(res.ColumnNames, ", ") + ") values "
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(res.ColumnNames)), ", ") + ")"
	var params []value.Value
	rows := 0
	flush := func() error {
		if rows == 0 {
			return nil
		}
		sql := head + strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
		r, err := db.Exec(ctx, sql, params)
		if err != nil {
			return fmt.Errorf("tinyodbc: insert into %s: %w", table, err)
		}
		if r.RowsAffected > 0 {
			res.RowsInserted += int64(r.RowsAffected)
		} else {
			res.RowsInserted += int64(rows)
		}
		params, rows = params[:0], 0
		return nil
	}

	for i, rec := range body {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := i + 1
		if res.HadHeader {
			line++
		}
		row, err := convertRow(rec, res.ColumnTypes, o.NullLiterals)
		if err != nil {
			if o.StrictTypes {
				return fmt.Errorf("tinyodbc: line %d: %w", line, err)
			}
			res.RowsSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v (skipped)", line, err))
			continue
		}
		params = append(params, row...)
		rows++
		if rows >= o.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func createStatement(table string, names []string, types []ColType) string {
	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = n + " " + types[i].SQL()
	}
	return "create table if not exists " + table + " (" + strings.Join(cols, ", ") + ")"
}

func maybeGzip(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		if zr, err := gzip.NewReader(br); err == nil {
			return zr
		}
	}
	return br
}

// detectDelimiter picks the candidate that splits the sample into the
// most columns while keeping the column count consistent across records.
func detectDelimiter(data []byte, cands []rune, maxRecs int) rune {
	best, bestScore := cands[0], -1
	for _, d := range cands {
		cr := csv.NewReader(bytes.NewReader(data))
		cr.Comma = d
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		counts := map[int]int{}
		n := 0
		for n < maxRecs {
			rec, err := cr.Read()
			if err != nil {
				break
			}
			counts[len(rec)]++
			n++
		}
		if n == 0 {
			continue
		}
		width, freq := 0, 0
		for w, c := range counts {
			if c > freq || (c == freq && w > width) {
				width, freq = w, c
			}
		}
		if width < 2 {
			continue
		}
		// consistency first, then width
		score := freq*100/n*1000 + width
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// decideHeader treats the first record as a header when data follows it
// and its cells are distinct, non-empty text.
func decideHeader(records [][]string, mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "present":
		return true
	case "absent":
		return false
	}
	if len(records) < 2 {
		return false
	}

	first := records[0]
	seen := map[string]bool{}
	for _, h := range first {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] || detectValueType(h) != TextType {
			return false
		}
		seen[h] = true
	}
	return true
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	return strings.ToLower(s)
}

func sanitizeColumnNames(h []string, width int) []string {
	out := make([]string, width)
	used := map[string]int{}
	for i := range out {
		var s string
		if i < len(h) {
			s = sanitizeName(h[i])
		}
		if s == "" {
			s = fmt.Sprintf("col_%d", i+1)
		}
		if n := used[s]; n > 0 {
			used[s]++
			s = fmt.Sprintf("%s_%d", s, n+1)
		}
		used[s]++
		out[i] = s
	}
	return out
}

func generateColumnNames(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}
