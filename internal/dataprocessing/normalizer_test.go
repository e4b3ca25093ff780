package dataprocessing

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flysight2csv/pkg/contracts/domain"
)

// GPS week 2292 starts Sunday 2023-12-10; a time-of-week of 316800 s is
// Wednesday 16:00:00 on the GPS timescale, 15:59:42 UTC with 18 leap seconds.
var wednesdayReference = time.Date(2023, time.December, 13, 15, 59, 42, 0, time.UTC)

func normalizeAll(t *testing.T, content string, opts NormalizerOptions) (*Normalizer, []domain.NormalizedRow) {
	t.Helper()
	p := NewParser(strings.NewReader(content), "f.csv", ParserOptions{})
	n := NewNormalizer(p, p.Meta(), opts)
	var rows []domain.NormalizedRow
	for {
		row, err := n.Next()
		if err == io.EOF {
			return n, rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestGPSToUTC(t *testing.T) {
	assert.Equal(t, wednesdayReference, GPSToUTC(2292, 316800, 18))
	// leap seconds shift the projection, they are not baked into the epoch
	assert.Equal(t, wednesdayReference.Add(18*time.Second), GPSToUTC(2292, 316800, 0))
	assert.Equal(t, time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC), GPSToUTC(0, 0, 0))
}

func TestNormalizerAnchorsOnFirstTimeRow(t *testing.T) {
	n, rows := normalizeAll(t, sensorFileContent, NormalizerOptions{GPSLeapSeconds: 18})

	require.Len(t, rows, 3)
	anchor := n.Anchor()
	require.NotNil(t, anchor)
	assert.Equal(t, 0.25, anchor.DeviceSeconds)
	assert.Equal(t, 2292, anchor.Week)
	assert.Equal(t, 316800.0, anchor.TimeOfWeek)
	assert.False(t, n.MissingOffset())

	// offset = reference - 0.25 s; every row is offset + its relative time
	offset := wednesdayReference.Add(-250 * time.Millisecond)
	for i, wantRel := range []time.Duration{125 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond} {
		row := rows[i]
		assert.True(t, row.HasTimestamp, "row %d", i)
		assert.True(t, row.ValidOffset, "row %d", i)
		assert.Equal(t, offset.Add(wantRel), row.Timestamp, "row %d", i)
		assert.Equal(t, offset, row.OffsetTimestamp, "row %d", i)
	}

	// source order is preserved even though the first row preceded the anchor
	assert.Equal(t, []string{"BARO", "TIME", "BARO"}, []string{rows[0].Tag, rows[1].Tag, rows[2].Tag})
}

func TestNormalizerAbsoluteRowsPassThrough(t *testing.T) {
	content := "$VAR,A,1\n" +
		"$COLUMN,GNSS,time,lat,lon\n" +
		"$UNIT,GNSS,,deg,deg\n" +
		"GNSS,2023-12-13T15:59:41.800Z,52.1,13.4\n" +
		"GNSS,2023-12-13T15:59:41.850Z,52.2,13.5\n"
	n, rows := normalizeAll(t, content, NormalizerOptions{GPSLeapSeconds: 18})

	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2023, time.December, 13, 15, 59, 41, 800_000_000, time.UTC), rows[0].Timestamp)
	assert.True(t, rows[0].HasTimestamp)
	assert.True(t, rows[0].ValidOffset)
	assert.True(t, rows[0].OffsetTimestamp.IsZero())

	// no relative rows, so the absent anchor is not a problem
	assert.Nil(t, n.Anchor())
}

func TestNormalizerNegativeFractionQuirk(t *testing.T) {
	// some firmware builds write "28.-001Z" meaning 0.001 s before second 28
	ts, ok := parseAbsoluteTime("2023-12-16T23:21:28.-001Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.December, 16, 23, 21, 27, 999_000_000, time.UTC), ts)

	_, ok = parseAbsoluteTime("0.125")
	assert.False(t, ok)
}

func TestNormalizerManualOffset(t *testing.T) {
	manual := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	n, rows := normalizeAll(t, sensorFileContent, NormalizerOptions{
		ManualOffset:   manual,
		GPSLeapSeconds: 18,
	})

	require.Len(t, rows, 3)
	assert.False(t, n.MissingOffset())
	// the manual offset wins; no anchor is derived from the $TIME row
	assert.Nil(t, n.Anchor())
	assert.Equal(t, manual.Add(125*time.Millisecond), rows[0].Timestamp)
	assert.Equal(t, manual, rows[0].OffsetTimestamp)
}

func TestNormalizerWithoutAnchor(t *testing.T) {
	content := "$VAR,A,1\n$COLUMN,BARO,time,pressure\n$UNIT,BARO,s,Pa\n" +
		"BARO,0.125,101325.0\nBARO,0.250,101324.0\n"
	n, rows := normalizeAll(t, content, NormalizerOptions{GPSLeapSeconds: 18})

	require.Len(t, rows, 2)
	assert.True(t, n.MissingOffset())
	for _, row := range rows {
		assert.False(t, row.HasTimestamp)
		assert.False(t, row.ValidOffset)
	}
}

func TestNormalizerRowWithoutTimeColumn(t *testing.T) {
	content := "$VAR,A,1\n$COLUMN,VBAT,voltage\n$UNIT,VBAT,volt\nVBAT,3.7\n"
	_, rows := normalizeAll(t, content, NormalizerOptions{GPSLeapSeconds: 18})

	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasTimestamp)
	assert.False(t, rows[0].ValidOffset)
	assert.Equal(t, []string{"voltage"}, rows[0].Columns)
}

func TestNormalizerMonotonicWithAnchor(t *testing.T) {
	_, rows := normalizeAll(t, sensorFileContent, NormalizerOptions{GPSLeapSeconds: 18})
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Timestamp.Before(rows[i-1].Timestamp))
	}
}
