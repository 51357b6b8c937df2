// Package dataset loads tabular text datasets from CSV, TXT and JSON files.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrEmptyDataset   = errors.New("dataset is empty")
	ErrUnsupported    = errors.New("unsupported file type")
)

// Dataset is a header plus rows of string cells. Short rows are padded.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}

func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (d *Dataset) Column(name string) ([]string, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrColumnNotFound, name, strings.Join(d.Columns, ", "))
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, nil
}

func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// AllowedExtension reports whether filename has one of the allowed extensions.
func AllowedExtension(filename string, allowed []string) bool {
	ext := Extension(filename)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// Load reads a dataset, picking the parser from the file extension.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := stripBOM(f)
	switch Extension(path) {
	case "csv":
		return ReadCSV(r, ',')
	case "txt":
		br := bufio.NewReader(r)
		return ReadCSV(br, sniffDelimiter(br))
	case "json":
		return ReadJSON(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

func stripBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// sniffDelimiter picks tab for tab-separated headers without commas.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return '\t'
	}
	return ','
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader, comma rune) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no header row", ErrEmptyDataset)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	ds := &Dataset{Columns: columns}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(ds.Rows)+2, err)
		}
		if len(record) > len(columns) {
			return nil, fmt.Errorf("row %d: expected %d fields, saw %d", len(ds.Rows)+2, len(columns), len(record))
		}
		if len(record) == 1 && record[0] == "" && len(columns) > 1 {
			continue
		}
		row := make([]string, len(columns))
		copy(row, record)
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// ReadJSON accepts an array of records, or one record per line.
func ReadJSON(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDataset
	}

	var records []map[string]interface{}
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var rec map[string]interface{}
			if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return nil, fmt.Errorf("decode json record %d: %w", len(records)+1, err)
			}
			records = append(records, rec)
		}
	}
	return fromRecords(records), nil
}

func fromRecords(records []map[string]interface{}) *Dataset {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			columns = append(columns, k)
		}
	}

	ds := &Dataset{Columns: columns, Rows: make([][]string, 0, len(records))}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = cellString(rec[c])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
