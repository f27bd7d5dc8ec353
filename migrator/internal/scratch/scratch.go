// Package scratch manages the local directories export files pass through.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/utils/misc"
)

// Base is the root of a run's scratch area.
type Base struct {
	path     string
	implicit bool
}

// New uses path as the scratch root, or allocates a fresh directory under tmpRoot when path is empty.
// Only an allocated root is removed by Cleanup.
func New(path, tmpRoot string) (*Base, error) {
	if path != "" {
		if err := os.MkdirAll(path, os.ModePerm); err != nil {
			return nil, fmt.Errorf("creating scratch directory: %w", err)
		}
		return &Base{path: path}, nil
	}

	dir, err := os.MkdirTemp(tmpRoot, "sf-migrate-")
	if err != nil {
		return nil, fmt.Errorf("allocating scratch directory: %w", err)
	}
	return &Base{path: dir, implicit: true}, nil
}

func (b *Base) Path() string {
	return b.path
}

func (b *Base) Implicit() bool {
	return b.implicit
}

// TableDir returns an empty directory dedicated to one table in one run.
func (b *Base) TableDir(table, timestamp string) (string, error) {
	dir := filepath.Join(b.path, fmt.Sprintf("table_%s_%s", sqlident.PathKey(table), timestamp))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("creating table directory: %w", err)
	}
	if err := misc.RemoveContents(dir); err != nil {
		return "", fmt.Errorf("clearing table directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes the scratch root if it was allocated by New.
func (b *Base) Cleanup() error {
	if !b.implicit {
		return nil
	}
	return os.RemoveAll(b.path)
}

// Files lists the regular files directly under dir, sorted by name.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
