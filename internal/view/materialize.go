package view

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaterializeOptions configures symlink tree materialization.
type MaterializeOptions struct {
	// Absolute creates absolute symlink targets instead of relative ones.
	Absolute bool
}

// Materialize writes entries as a symlink tree rooted at outputDir,
// first sweeping any existing symlinks (and resulting empty
// directories) from a prior run. Regular files under outputDir are
// never touched. Returns the number of symlinks created.
func Materialize(entries []Entry, outputDir string, opts MaterializeOptions) (int, error) {
	if _, err := CleanupOutputDir(outputDir); err != nil {
		return 0, fmt.Errorf("view: cleanup before materialize: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("view: create output dir: %w", err)
	}

	created := 0
	for _, e := range entries {
		linkPath := filepath.Join(outputDir, e.RelPath)
		if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
			return created, fmt.Errorf("view: create parent dir for %s: %w", e.RelPath, err)
		}

		target := e.Target
		if !opts.Absolute {
			rel, err := filepath.Rel(filepath.Dir(linkPath), e.Target)
			if err == nil {
				target = rel
			}
		}

		if fi, err := os.Lstat(linkPath); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				os.Remove(linkPath)
			} else {
				return created, fmt.Errorf("view: refusing to overwrite non-symlink at %s", linkPath)
			}
		}

		if err := os.Symlink(target, linkPath); err != nil {
			return created, fmt.Errorf("view: symlink %s: %w", linkPath, err)
		}
		created++
	}
	return created, nil
}

// CleanupOutputDir removes every symlink under outputDir (regular
// files are left alone), then removes any directories left empty,
// bottom-up. Returns the number of symlinks removed.
func CleanupOutputDir(outputDir string) (int, error) {
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		return 0, nil
	}

	removed := 0
	err := filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("view: walk output dir: %w", err)
	}

	removeEmptyDirsBottomUp(outputDir)
	return removed, nil
}

func removeEmptyDirsBottomUp(root string) {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}
}
