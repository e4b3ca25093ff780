package dataprocessing

import (
	"sort"

	"flysight2csv/pkg/contracts/domain"
)

// MergeStreams combines the normalized rows of sibling files into one
// timestamp-ordered stream. Streams must be passed in discovery order
// (sorted path order, so SENSOR.CSV precedes TRACK.CSV); that order is the
// tie-break for equal instants, followed by source line number. Rows without
// a trustworthy instant sort after all valid rows, keeping discovery order
// then line order among themselves.
//
// The whole directory's rows are materialized here; this is the only place
// with super-linear memory relative to a single file, bounded by one
// directory at a time.
func MergeStreams(streams ...[]domain.NormalizedRow) []domain.NormalizedRow {
	type indexed struct {
		row    domain.NormalizedRow
		stream int
	}

	var total int
	for _, s := range streams {
		total += len(s)
	}
	merged := make([]indexed, 0, total)
	for i, s := range streams {
		for _, row := range s {
			merged = append(merged, indexed{row: row, stream: i})
		}
	}

	valid := func(r domain.NormalizedRow) bool { return r.ValidOffset && r.HasTimestamp }

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		switch {
		case valid(a.row) && !valid(b.row):
			return true
		case !valid(a.row) && valid(b.row):
			return false
		case valid(a.row):
			if !a.row.Timestamp.Equal(b.row.Timestamp) {
				return a.row.Timestamp.Before(b.row.Timestamp)
			}
		}
		if a.stream != b.stream {
			return a.stream < b.stream
		}
		return a.row.Line < b.row.Line
	})

	rows := make([]domain.NormalizedRow, len(merged))
	for i, m := range merged {
		rows[i] = m.row
	}
	return rows
}
