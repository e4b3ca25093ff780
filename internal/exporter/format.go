// Package exporter serializes normalized row streams into the supported
// output formats. Ordering and padding are deterministic: given the same
// input sequence the output is byte-identical across runs.
package exporter

import (
	"fmt"
	"strconv"
	"time"

	"flysight2csv/pkg/contracts/domain"
)

// Format identifies an output format.
type Format string

// The supported output formats.
const (
	FormatUnchanged        Format = "unchanged"
	FormatCSVFlat          Format = "csv-flat"
	FormatJSONLinesMinimal Format = "json-lines-minimal"
	FormatJSONLinesHeader  Format = "json-lines-header"
	FormatJSONLinesFull    Format = "json-lines-full"
	FormatXLSX             Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatUnchanged, FormatCSVFlat, FormatJSONLinesMinimal,
		FormatJSONLinesHeader, FormatJSONLinesFull, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", name)
}

// Extension returns the artifact file extension for a format, including the
// leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatJSONLinesMinimal, FormatJSONLinesHeader, FormatJSONLinesFull:
		return ".jsonl"
	case FormatXLSX:
		return ".xlsx"
	default:
		return ".csv"
	}
}

// CSVDialect controls the csv-flat record terminator. The device writes CRLF
// line endings, so that is the default dialect.
type CSVDialect struct {
	UseCRLF bool
}

// ParseCSVDialect maps a configuration name to a dialect.
func ParseCSVDialect(name string) (CSVDialect, error) {
	switch name {
	case "", "crlf":
		return CSVDialect{UseCRLF: true}, nil
	case "lf":
		return CSVDialect{UseCRLF: false}, nil
	}
	return CSVDialect{}, fmt.Errorf("unknown csv line ending %q", name)
}

// renderCell renders one column of a row as CSV cell text. Data fields keep
// their raw source text byte-for-byte; metadata fields use the canonical
// timestamp layout. Missing values render as the empty string.
func renderCell(row *domain.NormalizedRow, column string) string {
	if domain.IsMetaField(column) {
		return renderMetaValue(row.MetaValue(column))
	}
	raw, _ := row.RawValue(column)
	return raw
}

func renderMetaValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(domain.TimestampLayout)
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%v", v)
}

// typedCell returns the typed value of one column for JSON and xlsx output:
// timestamps as canonical strings, data fields as int64/float64/string, nil
// for missing values.
func typedCell(row *domain.NormalizedRow, column string) (any, bool) {
	v, ok := row.Value(column)
	if !ok {
		return nil, false
	}
	if ts, isTime := v.(time.Time); isTime {
		return ts.UTC().Format(domain.TimestampLayout), true
	}
	return v, true
}
