// Package export renders record pages as spreadsheets.
package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/query"
)

// MaxRows caps one export.
const MaxRows = 10000

// Column renders one field of T.
type Column[T any] struct {
	Header string
	Width  float64
	Value  func(T) any
}

// Sheet describes the layout of one worksheet.
type Sheet[T any] struct {
	Name    string
	Columns []Column[T]
}

// Collect walks every page of st, starting from page 1, and returns all rows.
func Collect[T any](ctx context.Context, fetcher browser.Fetcher[T], schema *query.Schema, st query.State) ([]T, error) {
	st = schema.ApplyUpdate(st, query.SetPage(1))
	var rows []T
	for {
		page, err := fetcher.Fetch(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", st.Page, err)
		}
		rows = append(rows, page.Rows...)
		if len(rows) >= MaxRows {
			return rows[:MaxRows], nil
		}
		if !page.HasNext() || len(page.Rows) == 0 {
			return rows, nil
		}
		st = schema.ApplyUpdate(st, query.SetPage(page.Page+1))
	}
}

// Write renders rows as an xlsx workbook with a bold header row.
func Write[T any](sheet Sheet[T], rows []T) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	name := sheet.Name
	if name == "" {
		name = "Export"
	}
	index, err := f.NewSheet(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if name != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range sheet.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(name, cell, col.Header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		if col.Width > 0 {
			letter, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetColWidth(name, letter, letter, col.Width); err != nil {
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for r, row := range rows {
		for i, col := range sheet.Columns {
			v := col.Value(row)
			if v == nil || v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadRows returns the cell text of the first worksheet, header included.
func ReadRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
