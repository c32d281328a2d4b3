package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFileName rejects names that would escape the storage directory.
// Stored media filenames come from the wire (suggested names), so anything
// with a path separator or traversal component is refused.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("file name contains path separator: %s", name)
	}
	if name != filepath.Base(filepath.Clean(name)) || strings.Contains(name, "..") {
		return fmt.Errorf("file name contains traversal: %s", name)
	}
	return nil
}

// ValidateDataPath validates a database or storage path. Absolute paths are
// allowed (operators configure them), but traversal components are not.
func ValidateDataPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if path[0] == '\x00' {
		return fmt.Errorf("path contains NUL byte")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// WithinBase reports whether joining name onto baseDir stays inside baseDir.
func WithinBase(baseDir, name string) bool {
	full := filepath.Clean(filepath.Join(baseDir, name))
	base := filepath.Clean(baseDir)
	return full == base || strings.HasPrefix(full, base+string(filepath.Separator))
}
