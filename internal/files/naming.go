package files

import (
	"path/filepath"
	"strings"
)

// DisplayPath truncates a path to its last levels components, joined with
// forward slashes, e.g. "23-12-16/22-00-00/SENSOR.CSV". levels <= 0 keeps
// the full path.
func DisplayPath(path string, levels int) string {
	if levels <= 0 {
		return path
	}
	parts := splitPath(path)
	if len(parts) > levels {
		parts = parts[len(parts)-levels:]
	}
	return strings.Join(parts, "/")
}

// TargetName builds an artifact file name from the last levels components of
// the source path joined by sep. rename, when non-empty, replaces the base
// name (used for merged artifacts). Using "/" as sep preserves the directory
// structure under the output directory.
func TargetName(sourcePath string, levels int, sep, rename string) string {
	parts := splitPath(sourcePath)
	name := parts[len(parts)-1]
	if rename != "" {
		name = rename
	}
	if levels < 1 {
		levels = 1
	}
	start := len(parts) - levels
	if start < 0 {
		start = 0
	}
	joined := append(append([]string(nil), parts[start:len(parts)-1]...), name)
	return strings.Join(joined, sep)
}

// ReplaceExtension swaps the extension of an artifact name, keeping the name
// untouched when it already matches.
func ReplaceExtension(name, ext string) string {
	current := filepath.Ext(name)
	if strings.EqualFold(current, ext) {
		return name
	}
	return strings.TrimSuffix(name, current) + ext
}

func splitPath(p string) []string {
	clean := filepath.ToSlash(filepath.Clean(p))
	parts := strings.Split(clean, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}
