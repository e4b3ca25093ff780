package dataprocessing

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"flysight2csv/pkg/contracts/domain"
)

// gpsEpoch is the start of the GPS timescale.
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// timeSensorTag is the sensor whose rows correlate device-relative seconds
// with the GPS timeline.
const timeSensorTag = "TIME"

// absoluteTimeLayout matches timestamps written directly by the GNSS stream,
// e.g. "2023-12-16T23:21:02.000Z".
const absoluteTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// NormalizerOptions configures the time normalization for one file.
type NormalizerOptions struct {
	// ManualOffset, when non-zero, is the absolute instant corresponding to
	// device time zero. It overrides anchor derivation entirely.
	ManualOffset time.Time

	// GPSLeapSeconds is the fixed GPS-to-UTC offset subtracted when
	// projecting GPS week/time-of-week onto UTC.
	GPSLeapSeconds int
}

// pendingRow is a normalized row waiting for an anchor, together with its
// parsed device-relative seconds so it can be stamped retroactively.
type pendingRow struct {
	row    domain.NormalizedRow
	rel    float64
	hasRel bool
}

// Normalizer converts the RawRow sequence of one file into a one-to-one
// NormalizedRow sequence. Rows whose time column already holds an absolute
// instant pass through directly; device-relative rows are projected onto UTC
// using the file's TimeAnchor (the first usable $TIME row) or the manual
// override. Rows preceding the anchor are buffered and stamped once the
// anchor appears, so memory is bounded by the pre-anchor prefix of one file.
type Normalizer struct {
	src  RowSource
	meta *domain.FileMeta
	opts NormalizerOptions

	queue    []pendingRow
	anchored bool
	offset   time.Time
	anchor   *domain.TimeAnchor
	srcDone  bool
	srcErr   error
}

// NewNormalizer wraps a row source. meta must be the source's header state;
// it is consulted lazily, so definitions registered while streaming are seen.
func NewNormalizer(src RowSource, meta *domain.FileMeta, opts NormalizerOptions) *Normalizer {
	n := &Normalizer{src: src, meta: meta, opts: opts}
	if !opts.ManualOffset.IsZero() {
		n.anchored = true
		n.offset = opts.ManualOffset.UTC()
	}
	return n
}

// Anchor returns the selected time anchor, or nil when none was found (or a
// manual override made one unnecessary).
func (n *Normalizer) Anchor() *domain.TimeAnchor { return n.anchor }

// MissingOffset reports whether relative-time rows were emitted without a
// trustworthy absolute instant. Only meaningful after Next returned io.EOF.
func (n *Normalizer) MissingOffset() bool { return !n.anchored }

// Next returns the next normalized row in source order. io.EOF signals clean
// end of input.
func (n *Normalizer) Next() (domain.NormalizedRow, error) {
	for {
		// Emit the head of the queue once its stamp can no longer change: the
		// row is absolute-already, it carries no relative time at all, an
		// offset is known, or the input is exhausted. Only relative rows
		// ahead of a potential anchor ever wait.
		if len(n.queue) > 0 {
			head := n.queue[0]
			if head.row.HasTimestamp || !head.hasRel || n.anchored || n.srcDone {
				n.queue = n.queue[1:]
				return head.row, nil
			}
		}
		if n.srcDone {
			if n.srcErr != nil {
				return domain.NormalizedRow{}, n.srcErr
			}
			return domain.NormalizedRow{}, io.EOF
		}

		raw, err := n.src.Next()
		if err == io.EOF {
			n.srcDone = true
			continue
		}
		if err != nil {
			if len(n.queue) > 0 {
				// drain buffered rows before surfacing the terminal error
				n.srcDone = true
				n.srcErr = err
				continue
			}
			return domain.NormalizedRow{}, err
		}
		n.enqueue(raw)
	}
}

func (n *Normalizer) enqueue(raw domain.RawRow) {
	row := domain.NormalizedRow{RawRow: raw}
	var columns []string
	if def := n.meta.Definition(raw.Tag); def != nil {
		columns = def.Columns
	}
	row.Columns = columns

	value, ok := row.RawValue(domain.TimeColumn)
	if !ok {
		n.queue = append(n.queue, pendingRow{row: row})
		return
	}

	if ts, ok := parseAbsoluteTime(value); ok {
		row.Timestamp = ts
		row.HasTimestamp = true
		row.ValidOffset = true
		n.queue = append(n.queue, pendingRow{row: row})
		return
	}

	rel, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Debug("unparseable time value",
			slog.String("file", raw.File),
			slog.Int("line", raw.Line),
			slog.String("value", value))
		n.queue = append(n.queue, pendingRow{row: row})
		return
	}

	if !n.anchored && raw.Tag == timeSensorTag {
		n.tryAnchor(row, rel)
	}

	if n.anchored {
		row.Timestamp = n.offset.Add(durationSeconds(rel))
		row.HasTimestamp = true
		row.OffsetTimestamp = n.offset
		row.ValidOffset = true
		n.queue = append(n.queue, pendingRow{row: row, rel: rel, hasRel: true})
		return
	}

	n.queue = append(n.queue, pendingRow{row: row, rel: rel, hasRel: true})
}

// tryAnchor derives the file's offset from a $TIME row carrying tow and week
// columns, then stamps every buffered relative row.
func (n *Normalizer) tryAnchor(row domain.NormalizedRow, rel float64) {
	towRaw, okTow := row.RawValue("tow")
	weekRaw, okWeek := row.RawValue("week")
	if !okTow || !okWeek {
		return
	}
	tow, err := strconv.ParseFloat(towRaw, 64)
	if err != nil {
		return
	}
	week, err := strconv.Atoi(weekRaw)
	if err != nil {
		return
	}

	n.anchor = &domain.TimeAnchor{DeviceSeconds: rel, Week: week, TimeOfWeek: tow}
	reference := GPSToUTC(week, tow, n.opts.GPSLeapSeconds)
	n.offset = reference.Add(-durationSeconds(rel))
	n.anchored = true

	slog.Debug("time anchor selected",
		slog.String("file", row.File),
		slog.Int("line", row.Line),
		slog.Int("week", week),
		slog.Float64("tow", tow),
		slog.Float64("device_seconds", rel))

	for i := range n.queue {
		p := &n.queue[i]
		if p.row.HasTimestamp || !p.hasRel {
			continue
		}
		p.row.Timestamp = n.offset.Add(durationSeconds(p.rel))
		p.row.HasTimestamp = true
		p.row.OffsetTimestamp = n.offset
		p.row.ValidOffset = true
	}
}

// GPSToUTC projects a GPS week number and time-of-week onto UTC using a fixed
// leap-second offset.
func GPSToUTC(week int, timeOfWeek float64, leapSeconds int) time.Time {
	return gpsEpoch.
		Add(time.Duration(week) * 7 * 24 * time.Hour).
		Add(durationSeconds(timeOfWeek)).
		Add(-time.Duration(leapSeconds) * time.Second)
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseAbsoluteTime recognizes ISO-8601 instants as written by the GNSS
// stream. Some firmware builds emit a negative fraction ("…28.-001Z"); that
// quirk is folded toward zero the same way the device intends.
func parseAbsoluteTime(value string) (time.Time, bool) {
	negativeFraction := strings.Contains(value, ".-")
	if negativeFraction {
		value = strings.Replace(value, ".-", ".", 1)
	}
	ts, err := time.Parse(absoluteTimeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	ts = ts.UTC()
	if negativeFraction {
		frac := time.Duration(ts.Nanosecond())
		ts = ts.Add(-2 * frac)
	}
	return ts, true
}
