package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mrh-2003/aml-system/internal/detect"
)

// ExportTable serializes a detector table to a single-sheet .xlsx workbook.
// Re-reading the workbook yields the same row count and column set.
func ExportTable(table *detect.Table) (*bytes.Buffer, error) {
	if table == nil || len(table.Columns) == 0 {
		return nil, fmt.Errorf("cannot export empty table")
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf, nil
}

// ReadTable parses an exported workbook back into a table. Cell values come
// back as strings; callers needing typed values re-run the detector instead.
func ReadTable(r io.Reader, name string) (*detect.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook has no header row")
	}

	table := detect.NewTable(name, rows[0]...)
	for _, row := range rows[1:] {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}
