package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/xuri/excelize/v2"
)

const (
	// SheetName is the worksheet holding exported hands.
	SheetName    = "Hands"
	defaultSheet = "Sheet1"
)

var workbookHeader = []any{"ID", "Date", "Time", "Hand", "Analysis"}

var errNilWriter = errors.New("export: writer is required")

// WriteWorkbook renders the records as a single-sheet xlsx workbook, one row
// per hand in collection order.
func WriteWorkbook(w io.Writer, records []hands.HandRecord) (err error) {
	if w == nil {
		return errNilWriter
	}

	file := excelize.NewFile()
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := file.SetSheetName(defaultSheet, SheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := file.SetSheetRow(SheetName, "A1", &workbookHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	if err := file.SetRowStyle(SheetName, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("export: apply header style: %w", err)
	}

	for index, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, index+2)
		if err != nil {
			return fmt.Errorf("export: cell for row %d: %w", index+2, err)
		}
		row := []any{record.ID.String(), record.Date, record.Time, record.Text, record.AnalysisText()}
		if err := file.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("export: write hand %s: %w", record.ID, err)
		}
	}

	if err := file.SetColWidth(SheetName, "D", "E", 60); err != nil {
		return fmt.Errorf("export: column width: %w", err)
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
