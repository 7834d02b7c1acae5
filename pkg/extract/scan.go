package extract

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultExtension is the file extension Scan looks for when none is given.
const DefaultExtension = ".hhh"

// Scan lists files under dir whose extension matches one of exts, compared
// case-insensitively. With no exts, DefaultExtension is used. Results are in
// lexical walk order.
func Scan(dir string, recursive bool, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = []string{DefaultExtension}
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return files, nil
}
