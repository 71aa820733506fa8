package file

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindByExt lists regular files directly under dir whose extension is one of
// exts, sorted by name. A missing dir yields no files.
func FindByExt(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				found = append(found, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}
	sort.Strings(found)
	return found, nil
}
