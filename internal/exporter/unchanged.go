package exporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyUnchanged re-emits the original bytes verbatim. It runs upstream of
// parsing and normalization so it can never mutate the data; partial output
// on interrupt is acceptable and helps debugging.
func CopyUnchanged(sourcePath, targetPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return dst.Sync()
}
