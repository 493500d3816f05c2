// Package dataset loads delimited project-metrics files into an in-memory
// table of raw string cells and converts columns to numbers on demand.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// MaxFieldBytes bounds a single cell. Project metric exports carry whole
// JSON-ish monthly histories in one field, so the limit is generous.
const MaxFieldBytes = 10 * 1024 * 1024

// Table is a header plus rows of raw cells. Rows shorter than the header
// are padded with empty cells when loaded.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a Table from a header and rows, padding short rows.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{Columns: columns, Rows: rows, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	for i, r := range t.Rows {
		if len(r) < len(columns) {
			padded := make([]string, len(columns))
			copy(padded, r)
			t.Rows[i] = padded
		}
	}
	return t
}

// Load reads the file at path. A missing file, a file without a header
// and a file with an oversized cell are input errors.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewInputErrorf("LoadCSV", "file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("dataset").Debug("CSV loaded",
		log.SourceKey, path,
		log.SamplesKey, t.Len(),
		log.FeaturesKey, len(t.Columns),
	)
	return t, nil
}

// Read parses delimited data from r.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewInputError("LoadCSV", "CSV file is empty")
	}
	if err != nil {
		return nil, errors.NewInputErrorf("LoadCSV", "malformed header: %v", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
		columns[i] = h
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInputErrorf("LoadCSV", "row %d: %v", len(rows)+1, err)
		}
		for _, cell := range record {
			if len(cell) > MaxFieldBytes {
				return nil, errors.NewInputErrorf("LoadCSV",
					"row %d: field exceeds %d bytes", len(rows)+1, MaxFieldBytes)
			}
		}
		rows = append(rows, record)
	}
	return NewTable(columns, rows), nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the raw cells of name, or nil when the column is absent.
func (t *Table) Column(name string) []string {
	j, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[j]
	}
	return out
}

// Cell returns the cell at row i of column name, or "" when absent.
func (t *Table) Cell(i int, name string) string {
	j, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][j]
}

// Numeric converts column name with ParseNumeric; unparseable cells become
// NaN. It returns nil when the column is absent.
func (t *Table) Numeric(name string) []float64 {
	raw := t.Column(name)
	if raw == nil {
		return nil
	}
	out := make([]float64, len(raw))
	for i, s := range raw {
		out[i] = NumericOrNaN(s)
	}
	return out
}

// Records returns each row as a header → cell map, calling progress after
// every row when it is non-nil.
func (t *Table) Records(progress func(done, total int)) []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]string, len(t.Columns))
		for j, c := range t.Columns {
			if j < len(r) {
				m[c] = r[j]
			}
		}
		out[i] = m
		if progress != nil {
			progress(i+1, len(t.Rows))
		}
	}
	return out
}
