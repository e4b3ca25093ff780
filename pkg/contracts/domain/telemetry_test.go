package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionVarsEqual(t *testing.T) {
	a := SessionVars{"FIRMWARE_VER": "v2023.05.07", "DEVICE_ID": "abc"}
	b := SessionVars{"DEVICE_ID": "abc", "FIRMWARE_VER": "v2023.05.07"}
	assert.True(t, a.Equal(b))

	b["DEVICE_ID"] = "def"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(SessionVars{"FIRMWARE_VER": "v2023.05.07"}))
}

func TestColumnUnionDeclarationOrder(t *testing.T) {
	meta := NewFileMeta("SENSOR.CSV")
	meta.Sensors["TIME"] = &SensorDefinition{Tag: "TIME", Columns: []string{"time", "tow", "week"}}
	meta.Sensors["BARO"] = &SensorDefinition{Tag: "BARO", Columns: []string{"time", "pressure"}}
	meta.SensorOrder = []string{"TIME", "BARO"}

	// duplicates collapse, order follows the header declarations
	assert.Equal(t, []string{"time", "tow", "week", "pressure"}, meta.ColumnUnion())
}

func TestMergeMeta(t *testing.T) {
	a := NewFileMeta("SENSOR.CSV")
	a.Vars["FIRMWARE_VER"] = "v2023.05.07"
	a.Sensors["TIME"] = &SensorDefinition{Tag: "TIME", Columns: []string{"time", "tow", "week"}}
	a.SensorOrder = []string{"TIME"}

	b := NewFileMeta("TRACK.CSV")
	b.Vars["FIRMWARE_VER"] = "v2023.05.07"
	b.Sensors["GNSS"] = &SensorDefinition{Tag: "GNSS", Columns: []string{"time", "lat", "lon"}}
	b.SensorOrder = []string{"GNSS"}

	merged := MergeMeta(a, b)
	assert.Equal(t, []string{"SENSOR.CSV", "TRACK.CSV"}, merged.Paths)
	assert.Equal(t, []string{"TIME", "GNSS"}, merged.SensorOrder)
	assert.Equal(t, "v2023.05.07", merged.Vars["FIRMWARE_VER"])
}

func TestNormalizedRowValues(t *testing.T) {
	ts := time.Date(2023, time.December, 13, 15, 59, 42, 0, time.UTC)
	row := NormalizedRow{
		RawRow:       RawRow{Tag: "BARO", Fields: []string{"0.125", "101325.0", "25.5"}, File: "SENSOR.CSV", Line: 7},
		Columns:      []string{"time", "pressure", "temperature"},
		Timestamp:    ts,
		HasTimestamp: true,
		ValidOffset:  true,
	}

	v, ok := row.Value("sensor_name")
	require.True(t, ok)
	assert.Equal(t, "BARO", v)

	v, ok = row.Value("timestamp")
	require.True(t, ok)
	assert.Equal(t, ts, v)

	// offset_timestamp is unset for absolute-already rows
	v, ok = row.Value("offset_timestamp")
	require.True(t, ok)
	assert.Nil(t, v)

	v, ok = row.Value("pressure")
	require.True(t, ok)
	assert.Equal(t, 101325.0, v)

	_, ok = row.Value("lat")
	assert.False(t, ok)

	raw, ok := row.RawValue("pressure")
	require.True(t, ok)
	assert.Equal(t, "101325.0", raw)
}

func TestConvertField(t *testing.T) {
	assert.Equal(t, int64(2292), ConvertField("2292"))
	assert.Equal(t, 0.125, ConvertField("0.125"))
	assert.Equal(t, "v2023.05.07", ConvertField("v2023.05.07"))
	assert.Equal(t, "", ConvertField(""))
}

func TestIsMetaField(t *testing.T) {
	for _, f := range MetaFields {
		assert.True(t, IsMetaField(f), f)
	}
	assert.False(t, IsMetaField("pressure"))
}
