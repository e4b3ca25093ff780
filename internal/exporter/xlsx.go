package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// telemetrySheet is the single sheet name of xlsx artifacts.
const telemetrySheet = "telemetry"

// writeXLSX emits a workbook with one sheet: the field union as the first
// row, then one row per NormalizedRow with typed cell values. The ordering
// contract is identical to csv-flat.
func (r *Reformatter) writeXLSX(w io.Writer) error {
	if len(r.rows) == 0 {
		return ErrNothingToWrite
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", telemetrySheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(r.selected))
	for i, column := range r.selected {
		header[i] = column
	}
	if err := f.SetSheetRow(telemetrySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	cells := make([]any, len(r.selected))
	for i := range r.rows {
		row := &r.rows[i]
		for j, column := range r.selected {
			v, ok := typedCell(row, column)
			if !ok {
				v = nil
			}
			cells[j] = v
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(telemetrySheet, axis, &cells); err != nil {
			return fmt.Errorf("failed to write row for %s:%d: %w", row.File, row.Line, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
