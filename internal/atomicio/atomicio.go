// Package atomicio provides write-then-rename helpers so the columnar
// store never leaves a half-written merged partition visible to readers.
package atomicio

import (
	"os"
	"path/filepath"
)

// WriteFile writes data to path atomically: it writes to a sibling temp
// file, then renames over path. perm is applied to the temp file before the
// rename.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
