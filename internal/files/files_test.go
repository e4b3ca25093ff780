package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDiscoveryFind(t *testing.T) {
	root := t.TempDir()
	track := filepath.Join(root, "23-12-13", "16-00-00", "TRACK.CSV")
	sensor := filepath.Join(root, "23-12-13", "16-00-00", "SENSOR.CSV")
	other := filepath.Join(root, "23-12-13", "16-00-00", "NOTES.TXT")
	writeFile(t, track)
	writeFile(t, sensor)
	writeFile(t, other)

	d := NewDiscovery([]string{"**/*TRACK.CSV", "**/*SENSOR.CSV"})

	found, err := d.Find([]string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{sensor, track}, found)
}

func TestDiscoveryFindDirectFile(t *testing.T) {
	root := t.TempDir()
	track := filepath.Join(root, "TRACK.CSV")
	writeFile(t, track)

	d := NewDiscovery([]string{"**/*TRACK.CSV"})

	// a file given directly still has to match a pattern
	found, err := d.Find([]string{track})
	require.NoError(t, err)
	assert.Equal(t, []string{track}, found)

	// passing the same path twice does not duplicate the result
	found, err = d.Find([]string{track, track})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestDiscoveryFindMissingPath(t *testing.T) {
	d := NewDiscovery([]string{"**/*.CSV"})
	_, err := d.Find([]string{"/no/such/path"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file or directory")
}

func TestGroupByDirectory(t *testing.T) {
	paths := []string{
		"/data/a/SENSOR.CSV",
		"/data/a/TRACK.CSV",
		"/data/b/TRACK.CSV",
	}
	groups, order := GroupByDirectory(paths)

	assert.Equal(t, []string{"/data/a", "/data/b"}, order)
	assert.Equal(t, []string{"/data/a/SENSOR.CSV", "/data/a/TRACK.CSV"}, groups["/data/a"])
	assert.Equal(t, []string{"/data/b/TRACK.CSV"}, groups["/data/b"])
}

func TestDisplayPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		levels int
		want   string
	}{
		{"truncated", "/mnt/flysight/23-12-16/22-00-00/SENSOR.CSV", 3, "23-12-16/22-00-00/SENSOR.CSV"},
		{"fewer components than levels", "SENSOR.CSV", 3, "SENSOR.CSV"},
		{"zero keeps full path", "/a/b/c.csv", 0, "/a/b/c.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayPath(tt.path, tt.levels))
		})
	}
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		name   string
		source string
		levels int
		sep    string
		rename string
		want   string
	}{
		{"flattened", "/mnt/fs/23-12-16/22-00-00/TRACK.CSV", 3, "-", "", "23-12-16-22-00-00-TRACK.CSV"},
		{"preserve dirs", "/mnt/fs/23-12-16/22-00-00/TRACK.CSV", 2, "/", "", "22-00-00/TRACK.CSV"},
		{"renamed for merge", "/mnt/fs/23-12-16/22-00-00/TRACK.CSV", 2, "-", "MERGED.CSV", "22-00-00-MERGED.CSV"},
		{"single level", "/mnt/fs/TRACK.CSV", 1, "-", "", "TRACK.CSV"},
		{"levels beyond root", "TRACK.CSV", 5, "-", "", "TRACK.CSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetName(tt.source, tt.levels, tt.sep, tt.rename))
		})
	}
}

func TestReplaceExtension(t *testing.T) {
	assert.Equal(t, "TRACK.jsonl", ReplaceExtension("TRACK.CSV", ".jsonl"))
	assert.Equal(t, "TRACK.CSV", ReplaceExtension("TRACK.CSV", ".csv"))
	assert.Equal(t, "TRACK.xlsx", ReplaceExtension("TRACK.csv", ".xlsx"))
}
