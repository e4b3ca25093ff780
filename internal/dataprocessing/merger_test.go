package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flysight2csv/pkg/contracts/domain"
)

func stampedRow(tag, file string, line int, ts time.Time) domain.NormalizedRow {
	return domain.NormalizedRow{
		RawRow:       domain.RawRow{Tag: tag, File: file, Line: line},
		Timestamp:    ts,
		HasTimestamp: true,
		ValidOffset:  true,
	}
}

func TestMergeStreamsOrdersByTimestamp(t *testing.T) {
	base := time.Date(2023, time.December, 13, 16, 0, 0, 0, time.UTC)
	sensor := []domain.NormalizedRow{
		stampedRow("BARO", "SENSOR.CSV", 7, base.Add(100*time.Millisecond)),
		stampedRow("BARO", "SENSOR.CSV", 8, base.Add(300*time.Millisecond)),
	}
	track := []domain.NormalizedRow{
		stampedRow("GNSS", "TRACK.CSV", 4, base.Add(50*time.Millisecond)),
		stampedRow("GNSS", "TRACK.CSV", 5, base.Add(200*time.Millisecond)),
	}

	merged := MergeStreams(sensor, track)
	require.Len(t, merged, 4)

	var got []int
	for _, row := range merged {
		got = append(got, row.Line)
	}
	assert.Equal(t, []int{4, 7, 5, 8}, got)
}

func TestMergeStreamsTieBreaks(t *testing.T) {
	ts := time.Date(2023, time.December, 13, 16, 0, 0, 0, time.UTC)
	sensor := []domain.NormalizedRow{stampedRow("BARO", "SENSOR.CSV", 9, ts)}
	track := []domain.NormalizedRow{stampedRow("GNSS", "TRACK.CSV", 4, ts)}

	// equal instants: earlier stream first, regardless of line number
	merged := MergeStreams(sensor, track)
	require.Len(t, merged, 2)
	assert.Equal(t, "SENSOR.CSV", merged[0].File)
	assert.Equal(t, "TRACK.CSV", merged[1].File)

	// within one stream equal instants keep line order
	same := []domain.NormalizedRow{
		stampedRow("BARO", "SENSOR.CSV", 12, ts),
		stampedRow("BARO", "SENSOR.CSV", 11, ts),
	}
	merged = MergeStreams(same)
	assert.Equal(t, []int{11, 12}, []int{merged[0].Line, merged[1].Line})
}

func TestMergeStreamsInvalidRowsSortLast(t *testing.T) {
	ts := time.Date(2023, time.December, 13, 16, 0, 0, 0, time.UTC)
	untrusted := domain.NormalizedRow{
		RawRow: domain.RawRow{Tag: "BARO", File: "SENSOR.CSV", Line: 2},
	}
	sensor := []domain.NormalizedRow{untrusted, stampedRow("BARO", "SENSOR.CSV", 3, ts)}
	track := []domain.NormalizedRow{stampedRow("GNSS", "TRACK.CSV", 4, ts.Add(time.Second))}

	merged := MergeStreams(sensor, track)
	require.Len(t, merged, 3)
	assert.Equal(t, 3, merged[0].Line)
	assert.Equal(t, 4, merged[1].Line)
	assert.Equal(t, 2, merged[2].Line)
	assert.False(t, merged[2].ValidOffset)
}

func TestMergeStreamsEmpty(t *testing.T) {
	assert.Empty(t, MergeStreams())
	assert.Empty(t, MergeStreams(nil, nil))
}
