// Package ingest reads bank statement exports (CSV, XLSX, XLS) into rows
// ready for import.
//
// Column layouts differ per bank, so the header row and the date, label and
// amount columns are detected from the header text.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported statement format")

	// ErrNoHeader is returned when no row looks like a header with a date
	// column and an amount source.
	ErrNoHeader = errors.New("no header row with date and amount columns found")
)

// Row is one statement line.
type Row struct {
	Line       int // 1-based row number in the source file
	Date       time.Time
	Label      string
	Amount     decimal.Decimal // Credit positive, debit negative
	Balance    *decimal.Decimal
	InvoiceRef string // Invoice reference spotted in the label, if any
	Raw        map[string]string
}

// RawJSON encodes the source cells keyed by header.
func (r Row) RawJSON() string {
	if len(r.Raw) == 0 {
		return ""
	}
	b, err := json.Marshal(r.Raw)
	if err != nil {
		return ""
	}
	return string(b)
}

// Statement is a parsed file.
type Statement struct {
	Format  string // csv, xlsx or xls
	Columns Columns
	Rows    []Row
	Skipped int // Data rows without a usable date or amount
}

// Parse reads a statement, picking the parser from the file extension.
func Parse(filename string, r io.Reader) ([]Row, error) {
	st, err := ParseStatement(filename, r)
	if err != nil {
		return nil, err
	}
	return st.Rows, nil
}

// ParseStatement is Parse with the detected layout and skip count.
func ParseStatement(filename string, r io.Reader) (*Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var (
		records [][]string
		format  string
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", ".txt":
		format = "csv"
		records, err = readCSV(data)
	case ".xlsx":
		format = "xlsx"
		records, err = readXLSX(data)
	case ".xls":
		format = "xls"
		records, err = readXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	st, err := fromRecords(records, format != "csv")
	if err != nil {
		return nil, err
	}
	st.Format = format
	return st, nil
}
