// Command tinyodbc runs SQL against an ODBC data source and prints the
// decoded rows as JSON, CSV, XML or a plain list. With -import it first
// loads a delimited file into a table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SimonWaldherr/tinyodbc"
	"github.com/SimonWaldherr/tinyodbc/internal/exporter"
	"github.com/SimonWaldherr/tinyodbc/internal/importer"
)

type outputMode string

const (
	modeList outputMode = "list"
	modeCSV  outputMode = "csv"
	modeJSON outputMode = "json"
	modeXML  outputMode = "xml"
)

func main() {
	exitIfErr(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout))
}

func exitIfErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "tinyodbc:", err)
	os.Exit(1)
}

func run(ctx context.Context, args []string, stdin io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("tinyodbc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dsn := fs.String("dsn", "Driver={SQLite3};Database=:memory:", "DSN (dameng://, odbc:// or a driver connection string)")
	config := fs.String("config", "", "YAML config file; overrides -dsn")
	cmd := fs.String("e", "", "Execute the provided SQL then exit")
	mode := fs.String("format", string(modeList), "Output format: list|csv|json|xml")
	headers := fs.Bool("header", true, "Include column headers in list and csv output")
	echo := fs.Bool("echo", false, "Echo SQL statements before execution")
	importFile := fs.String("import", "", "CSV/TSV file to load before running SQL (- for stdin)")
	table := fs.String("table", "", "Target table for -import (default: file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch outputMode(*mode) {
	case modeList, modeCSV, modeJSON, modeXML:
	default:
		return fmt.Errorf("unknown format %q", *mode)
	}

	sqlText := *cmd
	if sqlText == "" {
		sqlText = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(sqlText) == "" && stdin != nil && *importFile != "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		sqlText = string(data)
	}
	stmts := splitStatements(sqlText)
	if len(stmts) == 0 && *importFile == "" {
		return errors.New("no SQL supplied")
	}

	var opts tinyodbc.Options
	var err error
	if *config != "" {
		opts, err = tinyodbc.LoadConfig(*config)
	} else {
		opts, err = tinyodbc.ParseDSN(*dsn)
	}
	if err != nil {
		return err
	}

	return tinyodbc.With(ctx, opts, func(s *tinyodbc.Session) error {
		if *importFile != "" {
			if err := importInto(ctx, s, *importFile, *table, stdin, out); err != nil {
				return err
			}
		}
		for _, raw := range stmts {
			if *echo {
				fmt.Fprintln(out, raw)
			}
			if !returnsRows(raw) {
				res, err := s.Exec(ctx, raw, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "OK (%d rows affected)\n", res.RowsAffected)
				continue
			}
			rows, err := s.Query(ctx, raw, nil)
			if err != nil {
				return err
			}
			if err := render(out, exporter.FromMaps(rows), outputMode(*mode), *headers); err != nil {
				return err
			}
		}
		return nil
	})
}

func importInto(ctx context.Context, s *tinyodbc.Session, path, table string, stdin io.Reader, out io.Writer) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
		if table == "" {
			table = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			table = strings.TrimSuffix(table, filepath.Ext(table))
		}
	}
	if table == "" {
		return errors.New("-table is required when importing from stdin")
	}
	res, err := importer.ImportCSV(ctx, s, table, r, nil)
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, "tinyodbc:", e)
	}
	fmt.Fprintf(out, "imported %d rows into %s (%d skipped)\n", res.RowsInserted, table, res.RowsSkipped)
	return nil
}

// returnsRows reports whether a statement is sent through Query.
func returnsRows(stmt string) bool {
	head, _, _ := strings.Cut(strings.TrimSpace(stmt), " ")
	switch strings.ToLower(strings.TrimRight(head, "(\n\t")) {
	case "select", "with", "values", "pragma", "show", "describe", "explain":
		return true
	}
	return false
}

func render(out io.Writer, t exporter.Table, mode outputMode, headers bool) error {
	switch mode {
	case modeCSV:
		return exporter.ExportCSV(out, t, exporter.Options{CSVNoHeader: !headers})
	case modeJSON:
		return exporter.ExportJSON(out, t, exporter.Options{PrettyJSON: true})
	case modeXML:
		if err := exporter.ExportXML(out, t); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out)
		return err
	}
	if headers && len(t.Columns) > 0 {
		fmt.Fprintln(out, strings.Join(t.Columns, "|"))
	}
	for _, r := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			v, _ := r.Get(c)
			cells[i] = exporter.Text(v)
		}
		fmt.Fprintln(out, strings.Join(cells, "|"))
	}
	return nil
}

// splitStatements splits on semicolons outside quotes and comments.
func splitStatements(sql string) []string {
	var stmts []string
	var buf strings.Builder
	inSingle, inDouble := false, false
	inLineComment, inBlockComment := false, false
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			stmts = append(stmts, s)
		}
		buf.Reset()
	}
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		var next byte
		if i+1 < len(sql) {
			next = sql[i+1]
		}
		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
			continue
		case inBlockComment:
			if ch == '*' && next == '/' {
				inBlockComment = false
				i++
			}
			continue
		case inSingle:
			if ch == '\'' {
				inSingle = false
			}
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
		case ch == '-' && next == '-':
			inLineComment = true
			i++
			continue
		case ch == '/' && next == '*':
			inBlockComment = true
			i++
			continue
		case ch == '\'':
			inSingle = true
		case ch == '"':
			inDouble = true
		case ch == ';':
			flush()
			continue
		}
		buf.WriteByte(ch)
	}
	flush()
	return stmts
}
