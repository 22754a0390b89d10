// Package spreadsheet converts items to and from the xlsx workbook used for
// bulk export and import.
package spreadsheet

import (
	"fmt"
	"io"

	"github.com/kiranshivaraju/gudang/pkg/models"
	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the single sheet written by Encode.
const SheetName = "Data Barang"

// Header is the fixed first row. Decode reads columns by position, so labels
// may change but the order may not.
var Header = []string{"No", "Nama Barang", "Stok", "Kategori", "Tanggal Dibuat"}

var columnWidths = []float64{5, 30, 10, 25, 20}

const (
	noCategory = "-"
	dateLayout = "2/1/2006"
	rowHeight  = 20
)

var thinBorder = []excelize.Border{
	{Type: "top", Color: "000000", Style: 1},
	{Type: "left", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

// Encode writes items as a styled workbook to w, one row per item in order.
func Encode(w io.Writer, items []*models.Item) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E88E5"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	rowStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return fmt.Errorf("row style: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(Header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, item := range items {
		rowNum := i + 2
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := []any{
			i + 1,
			item.Name,
			item.Stock,
			categoryLabel(item),
			item.CreatedAt.Format(dateLayout),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", rowNum, err)
		}
		if err := f.SetRowHeight(SheetName, rowNum, rowHeight); err != nil {
			return fmt.Errorf("row height %d: %w", rowNum, err)
		}
	}
	if len(items) > 0 {
		if err := f.SetCellStyle(SheetName, "A2", fmt.Sprintf("%s%d", lastCol, len(items)+1), rowStyle); err != nil {
			return fmt.Errorf("style rows: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func categoryLabel(item *models.Item) string {
	if name := item.CategoryName(); name != "" {
		return name
	}
	return noCategory
}
