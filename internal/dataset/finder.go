// Package dataset locates, parses and caches the consolidated plan files served by the dashboard.
package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	planerrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
)

const (
	// FilePattern matches consolidated files.
	FilePattern = "final_consolidated_plans_*.json"

	noTimestamp = "00000000_000000"
)

var timestampRe = regexp.MustCompile(`(\d{8}_\d{6})`)

// FileTimestamp returns the YYYYMMDD_HHMMSS stamp embedded in a filename,
// or 00000000_000000 when there is none.
func FileTimestamp(name string) string {
	if m := timestampRe.FindString(filepath.Base(name)); m != "" {
		return m
	}
	return noTimestamp
}

// Finder discovers the newest consolidated file across a set of directories.
type Finder struct {
	dirs []string
}

// NewFinder creates a finder that searches dirs in order.
func NewFinder(dirs ...string) *Finder {
	return &Finder{dirs: dirs}
}

// Dirs returns the searched directories.
func (f *Finder) Dirs() []string {
	return f.dirs
}

// Candidates returns every matching file, newest first by filename timestamp.
// Files with equal timestamps keep directory search order.
func (f *Finder) Candidates() ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, dir := range f.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, FilePattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			files = append(files, m)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return FileTimestamp(files[i]) > FileTimestamp(files[j])
	})
	return files, nil
}

// Latest returns the newest consolidated file.
func (f *Finder) Latest() (string, error) {
	files, err := f.Candidates()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", planerrors.NoConsolidatedFiles(f.dirs)
	}
	return files[0], nil
}
