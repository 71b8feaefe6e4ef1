// Package safe opens operator-supplied input files with validation.
package safe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the size limit for files read whole (16MB).
const DefaultMaxFileSize = 16 << 20

// Options configures the checks applied before a file is read.
type Options struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means
	// DefaultMaxFileSize, a negative value disables the check.
	MaxSize int64
	// AllowSymlinks allows symlinked paths. Default is false.
	AllowSymlinks bool
}

// check validates path and returns its cleaned form.
func check(path string, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	clean := filepath.Clean(path)
	info, err := os.Lstat(clean)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return "", fmt.Errorf("file %q is a symlink, which is not allowed", path)
		}
		if info, err = os.Stat(clean); err != nil {
			return "", err
		}
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("path %q is not a regular file", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", fmt.Errorf("file %q exceeds maximum allowed size of %d bytes", path, maxSize)
	}
	return clean, nil
}

// ReadFile reads a whole file after validating it.
func ReadFile(path string, opts *Options) ([]byte, error) {
	clean, err := check(path, opts)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - validated above.
	return os.ReadFile(clean)
}

// Open opens a file for streaming after validating it.
func Open(path string, opts *Options) (*os.File, error) {
	clean, err := check(path, opts)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - validated above.
	return os.Open(clean)
}
