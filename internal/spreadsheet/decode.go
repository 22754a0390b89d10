package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheet is returned when a workbook has no worksheet to read.
var ErrNoSheet = errors.New("workbook has no sheets")

// Positional columns read by Decode. Column A (No) and E (Tanggal Dibuat) are ignored.
const (
	colName     = 1
	colStock    = 2
	colCategory = 3
)

// Row is one valid data row.
type Row struct {
	Name     string
	Stock    int
	Category string
}

// Reader streams valid rows from the first sheet of a workbook. Cells are read
// as stored, ignoring number formats. Rows with a missing field or a stock
// that is not a non-negative 32-bit integer are skipped and counted. A Reader makes
// a single pass and is not safe for concurrent use.
type Reader struct {
	file    *excelize.File
	rows    *excelize.Rows
	row     Row
	skipped int
	err     error
	done    bool
}

// OpenFile opens the workbook at path.
func OpenFile(path string) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return newReader(f)
}

// NewReader reads a workbook from r.
func NewReader(r io.Reader) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return newReader(f)
}

func newReader(f *excelize.File) (*Reader, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, ErrNoSheet
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	// header
	rows.Next()
	return &Reader{file: f, rows: rows}, nil
}

// Next advances to the next valid row. It returns false at the end of the
// sheet or on error; check Err afterwards.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}
	for r.rows.Next() {
		cols, err := r.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			r.fail(fmt.Errorf("read row: %w", err))
			return false
		}
		if blank(cols) {
			continue
		}
		row, ok := parseRow(cols)
		if !ok {
			r.skipped++
			continue
		}
		r.row = row
		return true
	}
	if err := r.rows.Error(); err != nil {
		r.fail(fmt.Errorf("read rows: %w", err))
		return false
	}
	r.done = true
	return false
}

// Row returns the row loaded by the last successful Next.
func (r *Reader) Row() Row { return r.row }

// Skipped returns how many non-blank rows were rejected so far.
func (r *Reader) Skipped() int { return r.skipped }

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

// Close releases the workbook.
func (r *Reader) Close() error {
	rowsErr := r.rows.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

func (r *Reader) fail(err error) {
	r.err = err
	r.done = true
}

func parseRow(cols []string) (Row, bool) {
	if len(cols) <= colCategory {
		return Row{}, false
	}
	name := strings.TrimSpace(cols[colName])
	stockText := strings.TrimSpace(cols[colStock])
	category := strings.TrimSpace(cols[colCategory])
	if name == "" || stockText == "" || category == "" {
		return Row{}, false
	}
	// items.stock is a 32-bit column
	stock, err := strconv.ParseInt(stockText, 10, 32)
	if err != nil || stock < 0 {
		return Row{}, false
	}
	return Row{Name: name, Stock: int(stock), Category: category}, true
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

