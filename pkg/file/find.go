package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindRecentAfter lists files under dir modified after startTime.
// When exts is non-empty only files with one of those extensions are returned.
func FindRecentAfter(dir string, startTime time.Time, exts ...string) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !info.ModTime().After(startTime) {
			return nil
		}
		if len(exts) > 0 && !HasExt(path, exts...) {
			return nil
		}
		recentFiles = append(recentFiles, path)
		return nil
	})

	return recentFiles, err
}

// HasExt reports whether path ends with one of exts, case-insensitively
func HasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
