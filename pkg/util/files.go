package util

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SplitName returns the file name without directory and extension, and the
// extension without its leading dot.
func SplitName(path string) (base, ext string) {
	name := filepath.Base(path)
	dotExt := filepath.Ext(name)
	return strings.TrimSuffix(name, dotExt), strings.TrimPrefix(dotExt, ".")
}
