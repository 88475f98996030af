package utils

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// WriteFileAtomic writes data to a uniquely named temp file in the target's
// directory and renames it into place, so concurrent readers and other
// workers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// IsTempPath reports whether a path names one of the temp files produced by
// WriteFileAtomic, so directory scans and watchers can skip them.
func IsTempPath(path string) bool {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if i+5 <= len(path) && path[i:i+5] == ".tmp-" {
			return true
		}
	}
	return false
}
