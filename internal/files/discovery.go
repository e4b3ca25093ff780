// Package files locates recording session files and constructs output
// artifact paths.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Discovery finds session files matching glob patterns under a set of files
// or directories. A pattern with a leading "**/" matches its remainder
// against the base name at any depth; other patterns match relative paths
// with path.Match semantics.
type Discovery struct {
	patterns []string
}

// NewDiscovery creates a discovery instance for the given patterns.
func NewDiscovery(patterns []string) *Discovery {
	return &Discovery{patterns: patterns}
}

// Find walks the given files and directories and returns matching file
// paths, sorted and deduplicated. Passing a matching file directly is
// allowed. Non-existent paths are an error.
func (d *Discovery) Find(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var matches []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("no such file or directory: %s", p)
		}

		if !info.IsDir() {
			if d.matches(filepath.Base(p)) {
				if _, dup := seen[p]; !dup {
					seen[p] = struct{}{}
					matches = append(matches, p)
				}
			}
			continue
		}

		err = filepath.WalkDir(p, func(fp string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			if !d.matches(entry.Name()) {
				return nil
			}
			if _, dup := seen[fp]; !dup {
				seen[fp] = struct{}{}
				matches = append(matches, fp)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}

	sort.Strings(matches)
	return matches, nil
}

// matches tests a base name against all patterns.
func (d *Discovery) matches(name string) bool {
	for _, pattern := range d.patterns {
		pattern = strings.TrimPrefix(pattern, "**/")
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// GroupByDirectory buckets file paths by parent directory. The returned
// directory list is sorted so processing order is deterministic; files
// within a directory keep their sorted order.
func GroupByDirectory(paths []string) (map[string][]string, []string) {
	groups := make(map[string][]string)
	var order []string
	for _, p := range paths {
		dir := filepath.Dir(p)
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], p)
	}
	sort.Strings(order)
	return groups, order
}
