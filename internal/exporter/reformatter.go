package exporter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"flysight2csv/internal/dataprocessing"
	"flysight2csv/pkg/contracts/domain"
)

// ErrNothingToWrite signals that filtering left no rows (or no columns) to
// serialize. The caller warns and skips the artifact instead of writing an
// empty one.
var ErrNothingToWrite = errors.New("no rows selected")

// Reformatter writes a normalized row stream in one of the re-encoded
// formats. The field union and its order are fixed at construction from the
// file header, so they cannot depend on which data row is seen first.
type Reformatter struct {
	meta    *domain.FileMeta
	rows    []domain.NormalizedRow
	sensors *dataprocessing.Selection

	// selected is the deterministic field union: metadata fields first in
	// fixed order, then data columns in header-declaration order, both
	// restricted by the column selection.
	selected []string
}

// NewReformatter prepares a writer over already-normalized rows. The sensor
// selection drops whole rows; the column selection restricts the field union.
func NewReformatter(
	meta *domain.FileMeta,
	rows []domain.NormalizedRow,
	sensors, columns *dataprocessing.Selection,
) (*Reformatter, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: input has no rows (%v)", ErrNothingToWrite, meta.Paths)
	}

	selected, err := selectColumns(meta, sensors, columns)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no columns selected", ErrNothingToWrite)
	}

	filtered := dataprocessing.FilterRows(rows, sensors)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: sensor selection matches no rows", ErrNothingToWrite)
	}

	return &Reformatter{
		meta:     meta,
		rows:     filtered,
		sensors:  sensors,
		selected: selected,
	}, nil
}

// Columns returns the selected field union in output order.
func (r *Reformatter) Columns() []string { return r.selected }

// Write serializes the stream in the requested format. The unchanged format
// never reaches this point; it is a byte copy upstream of the encoder.
func (r *Reformatter) Write(w io.Writer, format Format, dialect CSVDialect) error {
	switch format {
	case FormatCSVFlat:
		return r.writeCSV(w, dialect)
	case FormatJSONLinesMinimal:
		return r.writeJSONLines(w, false, false)
	case FormatJSONLinesHeader:
		return r.writeJSONLines(w, true, false)
	case FormatJSONLinesFull:
		return r.writeJSONLines(w, false, true)
	case FormatXLSX:
		return r.writeXLSX(w)
	}
	return fmt.Errorf("format %q cannot be written by the reformatter", format)
}

// writeCSV emits one header row followed by one record per row. Cells for
// columns a row's sensor does not carry stay empty.
func (r *Reformatter) writeCSV(w io.Writer, dialect CSVDialect) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = dialect.UseCRLF

	if len(r.rows) == 0 {
		return ErrNothingToWrite
	}
	if err := cw.Write(r.selected); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(r.selected))
	for _, row := range r.rows {
		for i, column := range r.selected {
			record[i] = renderCell(&row, column)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record for %s:%d: %w", row.File, row.Line, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeJSONLines emits one object per row. With header, a synthetic schema
// line listing the full field union (all values null) comes first. With
// fillNulls, every line carries the full union padded with nulls; otherwise
// only the fields relevant to the row's sensor appear.
func (r *Reformatter) writeJSONLines(w io.Writer, header, fillNulls bool) error {
	if len(r.rows) == 0 {
		return ErrNothingToWrite
	}

	bw := bufio.NewWriter(w)
	if header {
		if err := r.writeJSONObject(bw, nil, true); err != nil {
			return err
		}
	}
	for i := range r.rows {
		if err := r.writeJSONObject(bw, &r.rows[i], fillNulls); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeJSONObject writes one line. Keys follow the selected union order, so
// the output is byte-stable. A nil row produces the all-null schema line.
func (r *Reformatter) writeJSONObject(w *bufio.Writer, row *domain.NormalizedRow, fillNulls bool) error {
	if _, err := w.WriteString("{"); err != nil {
		return err
	}
	first := true
	for _, column := range r.selected {
		var value any
		if row != nil {
			v, ok := typedCell(row, column)
			if !ok && !fillNulls {
				continue
			}
			value = v
		}
		if !first {
			if _, err := w.WriteString(","); err != nil {
				return err
			}
		}
		first = false

		keyJSON, err := json.Marshal(column)
		if err != nil {
			return err
		}
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %q: %w", column, err)
		}
		if _, err := w.Write(keyJSON); err != nil {
			return err
		}
		if _, err := w.WriteString(":"); err != nil {
			return err
		}
		if _, err := w.Write(valueJSON); err != nil {
			return err
		}
	}
	_, err := w.WriteString("}\n")
	return err
}

// selectColumns builds the deterministic field union: metadata fields in
// fixed order, then the data columns of the selected sensors in declaration
// order, both filtered by the column selection.
func selectColumns(meta *domain.FileMeta, sensors, columns *dataprocessing.Selection) ([]string, error) {
	var selected []string
	for _, f := range domain.MetaFields {
		if columns.Matches(f) {
			selected = append(selected, f)
		}
	}
	for _, tag := range meta.SensorOrder {
		if !sensors.Matches(tag) {
			continue
		}
		for _, col := range meta.Sensors[tag].Columns {
			if !columns.Matches(col) {
				continue
			}
			if domain.IsMetaField(col) {
				return nil, fmt.Errorf("data column %q collides with a metadata field name", col)
			}
			if contains(selected, col) {
				continue
			}
			selected = append(selected, col)
		}
	}
	return selected, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
