package dataprocessing

import "flysight2csv/pkg/contracts/domain"

// Selection is a set-based include filter over string values. A nil
// Selection matches everything, so callers can thread "no filter" without
// special cases.
type Selection struct {
	values map[string]struct{}
}

// NewSelection builds a selection from included values. Returns nil for an
// empty list, meaning "match all".
func NewSelection(values []string) *Selection {
	if len(values) == 0 {
		return nil
	}
	s := &Selection{values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.values[v] = struct{}{}
	}
	return s
}

// Matches reports whether value is included.
func (s *Selection) Matches(value string) bool {
	if s == nil {
		return true
	}
	_, ok := s.values[value]
	return ok
}

// FilterStrings returns the values that match, preserving order.
func (s *Selection) FilterStrings(values []string) []string {
	if s == nil {
		return values
	}
	var out []string
	for _, v := range values {
		if s.Matches(v) {
			out = append(out, v)
		}
	}
	return out
}

// FilterRows restricts a normalized row stream to the selected sensors.
// Order is preserved; selecting a sensor absent from the input is not an
// error, the result is simply empty for it. Column restriction is applied at
// encoding time via the selected field union.
func FilterRows(rows []domain.NormalizedRow, sensors *Selection) []domain.NormalizedRow {
	if sensors == nil {
		return rows
	}
	var out []domain.NormalizedRow
	for _, row := range rows {
		if sensors.Matches(row.Tag) {
			out = append(out, row)
		}
	}
	return out
}
