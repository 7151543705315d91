package file

import (
	"path/filepath"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}

// Stem returns the file name without directory and extension
func Stem(path string) string {
	base := filepath.Base(path)
	if lastDot := strings.LastIndex(base, "."); lastDot > 0 {
		return base[:lastDot]
	}
	return base
}

// Derive builds "{dir}/{stem}_{suffix}{ext}" next to path, keeping its extension when ext is empty
func Derive(path, suffix, ext string) string {
	if ext == "" {
		ext = filepath.Ext(path)
	}
	return filepath.Join(filepath.Dir(path), Stem(path)+"_"+suffix+ext)
}
