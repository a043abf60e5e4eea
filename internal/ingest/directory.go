// Package ingest discovers documents on disk for batch and watch runs.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type DirStats struct {
	Scanned uint32
	Matched uint32
	Failed  uint32
}

// FileError records a path that could not be inspected.
type FileError struct {
	Path string
	Err  string
}

// Discover expands each argument into document paths. An argument may be a
// file, a directory (walked recursively) or a doublestar glob such as
// "scans/**/*.pdf". Results are de-duplicated and sorted.
func Discover(args []string, skipHidden bool) ([]string, []FileError, DirStats, error) {
	if len(args) == 0 {
		return nil, nil, DirStats{}, errors.New("at least one path is required")
	}

	var (
		stats  DirStats
		failed []FileError
		seen   = map[string]struct{}{}
	)
	add := func(path string) {
		stats.Scanned++
		if !AllowedExt(path) || (skipHidden && IsHidden(path)) {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		stats.Matched++
	}

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if hasMeta(arg) {
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, failed, stats, fmt.Errorf("glob %q: %w", arg, err)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			failed = append(failed, FileError{Path: arg, Err: err.Error()})
			stats.Failed++
			continue
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		werr := filepath.WalkDir(arg, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				failed = append(failed, FileError{Path: path, Err: walkErr.Error()})
				stats.Failed++
				return nil // continue walking
			}
			// skip hidden dirs/files if requested
			if skipHidden && path != arg && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			add(path)
			return nil
		})
		if werr != nil {
			return nil, failed, stats, fmt.Errorf("walk: %w", werr)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, failed, stats, nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
