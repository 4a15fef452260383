package common

import (
	"fmt"
	"os"
	"path/filepath"
)

// File permissions used across kcidb
const (
	// SecureFileMode is used for credentials files and their backups
	SecureFileMode os.FileMode = 0o600
	// OutputFileMode is used for exported documents
	OutputFileMode os.FileMode = 0o644
	// SecureDirMode is used for the configuration directory
	SecureDirMode os.FileMode = 0o700
	// DataDirMode is used for local database directories
	DataDirMode os.FileMode = 0o750
)

// WriteFile writes data through a temporary file in the same directory
// and renames it into place, so path never holds a partial write
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
