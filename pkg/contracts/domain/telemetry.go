package domain

import (
	"strconv"
	"time"
)

// TimestampLayout is the canonical rendering of absolute instants in every
// re-encoded output format: RFC 3339 UTC with microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// TimeColumn is the column name that carries the timestamp in every sensor
// stream emitted by the device firmware.
const TimeColumn = "time"

// SessionVars holds the $VAR key/value declarations from a file preamble.
// Immutable once the parser has consumed the header.
type SessionVars map[string]string

// Equal reports whether two variable sets declare exactly the same pairs.
func (v SessionVars) Equal(other SessionVars) bool {
	if len(v) != len(other) {
		return false
	}
	for k, val := range v {
		if o, ok := other[k]; !ok || o != val {
			return false
		}
	}
	return true
}

// SensorDefinition describes the shape of one sensor's data rows as declared
// by $COLUMN and $UNIT directives. Column and unit counts always match once
// the definition is complete.
type SensorDefinition struct {
	Tag     string
	Columns []string
	Units   []string
}

// TimeColumnIndex returns the position of the time column, or -1 if the
// sensor does not declare one.
func (d *SensorDefinition) TimeColumnIndex() int {
	for i, c := range d.Columns {
		if c == TimeColumn {
			return i
		}
	}
	return -1
}

// FileMeta is the parsed header of one telemetry file: session variables plus
// the sensor definitions in declaration order.
type FileMeta struct {
	Paths       []string // display paths of the source file(s)
	Vars        SessionVars
	Sensors     map[string]*SensorDefinition
	SensorOrder []string // tags in first-declaration order
}

// NewFileMeta returns an empty FileMeta ready for the parser to fill.
func NewFileMeta(displayPath string) *FileMeta {
	return &FileMeta{
		Paths:   []string{displayPath},
		Vars:    make(SessionVars),
		Sensors: make(map[string]*SensorDefinition),
	}
}

// Definition returns the sensor definition for a tag, or nil.
func (m *FileMeta) Definition(tag string) *SensorDefinition {
	return m.Sensors[tag]
}

// ColumnUnion returns all data column names across sensors, in declaration
// order (sensors by first $COLUMN directive, columns in declared order),
// with duplicates removed. The order is a pure function of the header, so it
// is stable no matter which data row happens to be seen first.
func (m *FileMeta) ColumnUnion() []string {
	var union []string
	seen := make(map[string]struct{})
	for _, tag := range m.SensorOrder {
		for _, col := range m.Sensors[tag].Columns {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			union = append(union, col)
		}
	}
	return union
}

// MergeMeta combines the headers of sibling files. Later files contribute
// sensors and variables not already declared; declaration order is preserved
// across files.
func MergeMeta(metas ...*FileMeta) *FileMeta {
	merged := &FileMeta{
		Vars:    make(SessionVars),
		Sensors: make(map[string]*SensorDefinition),
	}
	for _, m := range metas {
		merged.Paths = append(merged.Paths, m.Paths...)
		for k, v := range m.Vars {
			merged.Vars[k] = v
		}
		for _, tag := range m.SensorOrder {
			if _, ok := merged.Sensors[tag]; ok {
				continue
			}
			merged.Sensors[tag] = m.Sensors[tag]
			merged.SensorOrder = append(merged.SensorOrder, tag)
		}
	}
	return merged
}

// RawRow is a single data row as read from the source file. Field values keep
// their raw source text; Value derives a typed view on demand.
type RawRow struct {
	Tag    string
	Fields []string
	File   string // truncated display path of the source file
	Line   int    // 1-based line number in the source file
}

// TimeAnchor correlates device-relative seconds with the GPS timeline. It is
// selected from the first $TIME data row of a file.
type TimeAnchor struct {
	DeviceSeconds float64 // relative time recorded on the anchor row
	Week          int     // GPS week number
	TimeOfWeek    float64 // GPS time-of-week seconds
}

// NormalizedRow is a RawRow projected onto the absolute timeline. Exactly one
// NormalizedRow exists per RawRow, in source order.
type NormalizedRow struct {
	RawRow

	Columns []string // column names for Fields, from the sensor definition

	// Timestamp is the absolute UTC instant for this row. Only meaningful
	// when HasTimestamp is true.
	Timestamp    time.Time
	HasTimestamp bool

	// OffsetTimestamp is the instant corresponding to device time zero that
	// was added to a relative time value. Zero for absolute-already rows.
	OffsetTimestamp time.Time

	// ValidOffset reports whether Timestamp is trustworthy: true for
	// absolute-already rows and for relative rows stamped via an anchor or a
	// manual override.
	ValidOffset bool
}

// MetaFields lists the derived metadata columns of a NormalizedRow in the
// fixed order used by every output format.
var MetaFields = []string{
	"timestamp",
	"sensor_name",
	"file_path",
	"line_number",
	"offset_timestamp",
	"valid_offset",
}

var metaFieldSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(MetaFields))
	for _, f := range MetaFields {
		s[f] = struct{}{}
	}
	return s
}()

// IsMetaField reports whether name is a derived metadata column rather than a
// sensor data column.
func IsMetaField(name string) bool {
	_, ok := metaFieldSet[name]
	return ok
}

// MetaValue returns the typed value of a metadata column. Unset timestamps
// yield nil.
func (r *NormalizedRow) MetaValue(name string) any {
	switch name {
	case "timestamp":
		if !r.HasTimestamp {
			return nil
		}
		return r.Timestamp
	case "sensor_name":
		return r.Tag
	case "file_path":
		return r.File
	case "line_number":
		return r.Line
	case "offset_timestamp":
		if r.OffsetTimestamp.IsZero() {
			return nil
		}
		return r.OffsetTimestamp
	case "valid_offset":
		return r.ValidOffset
	}
	return nil
}

// RawValue returns the raw source text of a data column, or ("", false) when
// the row's sensor does not carry that column.
func (r *NormalizedRow) RawValue(column string) (string, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Fields) {
			return r.Fields[i], true
		}
	}
	return "", false
}

// Value returns the typed value of a column: metadata fields by name, data
// fields converted to int64, float64 or string. The bool result reports
// whether the row carries the column at all.
func (r *NormalizedRow) Value(column string) (any, bool) {
	if IsMetaField(column) {
		return r.MetaValue(column), true
	}
	raw, ok := r.RawValue(column)
	if !ok {
		return nil, false
	}
	return ConvertField(raw), true
}

// ConvertField derives a typed value from raw field text: integers first,
// then floats, falling back to the original string.
func ConvertField(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
