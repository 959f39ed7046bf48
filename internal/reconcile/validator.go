package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validateFile checks that path is a non-empty regular file with the given
// extension and no larger than maxSize.
func validateFile(path, ext string, maxSize int64) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}

	if !strings.EqualFold(filepath.Ext(path), ext) {
		return fmt.Errorf("file is not a %s file: %s", strings.TrimPrefix(ext, "."), path)
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}

	if info.Size() > maxSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), maxSize)
	}

	return nil
}
