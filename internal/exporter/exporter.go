// Package exporter renders decoded rows as CSV, JSON or XML.
package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/xml"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// Options controls exporter behavior.
type Options struct {
	PrettyJSON   bool
	CSVNoHeader  bool
	CSVDelimiter rune
}

// Table is a decoded result: column names in select order and one ordered
// map per row.
type Table struct {
	Columns []string
	Rows    []*value.Map
}

// FromMaps builds a table taking the column order from the first row.
func FromMaps(rows []*value.Map) Table {
	t := Table{Rows: rows}
	if len(rows) > 0 {
		t.Columns = rows[0].Keys()
	}
	return t
}

// Text renders a value for text formats. NULL is empty, binaries are hex,
// epoch extension values are formatted as UTC dates and times.
func Text(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return ""
	case value.KindBinary:
		return hex.EncodeToString(v.Bytes())
	case value.KindExt:
		ms, ok := v.Payload().Int()
		if !ok {
			break
		}
		t := time.UnixMilli(ms).UTC()
		switch v.Tag() {
		case value.ExtDate:
			return t.Format("2006-01-02")
		case value.ExtTime:
			return t.Format("15:04:05.999")
		case value.ExtTimestamp:
			return t.Format(time.RFC3339Nano)
		}
	}
	return v.Text()
}

func cell(m *value.Map, col string) value.Value {
	v, _ := m.Get(col)
	return v
}

// ExportCSV writes rows as CSV to w. Column order is preserved.
func ExportCSV(w io.Writer, t Table, opts Options) error {
	csvw := csv.NewWriter(w)
	if opts.CSVDelimiter != 0 {
		csvw.Comma = opts.CSVDelimiter
	}
	if !opts.CSVNoHeader {
		if err := csvw.Write(t.Columns); err != nil {
			return err
		}
	}
	for _, r := range t.Rows {
		row := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = Text(cell(r, c))
		}
		if err := csvw.Write(row); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

// ExportJSON writes rows as a JSON array of objects whose keys keep the
// column order.
func ExportJSON(w io.Writer, t Table, opts Options) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := value.MapOf(r).MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	if opts.PrettyJSON {
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
			return err
		}
		out.WriteByte('\n')
		_, err := out.WriteTo(w)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
	Null    bool   `xml:"null,attr,omitempty"`
}

type xmlRow struct {
	Fields []xmlField `xml:",any"`
}

type xmlRows struct {
	XMLName xml.Name `xml:"rows"`
	Rows    []xmlRow `xml:"row"`
}

// ExportXML writes rows as simple XML: <rows><row><col>value</col>...</row>...</rows>
func ExportXML(w io.Writer, t Table) error {
	xr := xmlRows{Rows: make([]xmlRow, 0, len(t.Rows))}
	for _, r := range t.Rows {
		row := xmlRow{Fields: make([]xmlField, 0, len(t.Columns))}
		for _, c := range t.Columns {
			v := cell(r, c)
			row.Fields = append(row.Fields, xmlField{XMLName: xml.Name{Local: c}, Value: Text(v), Null: v.IsNull()})
		}
		xr.Rows = append(xr.Rows, row)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xr); err != nil {
		return err
	}
	return enc.Flush()
}
