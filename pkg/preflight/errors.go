package preflight

import "errors"

var (
	// ErrSourceMissing is returned when the source directory does not exist.
	ErrSourceMissing = errors.New("source directory does not exist")

	// ErrNotDirectory is returned when a required directory path is a file.
	ErrNotDirectory = errors.New("path is not a directory")

	// ErrDirectoryMissing is returned when a directory is absent and creation is disabled.
	ErrDirectoryMissing = errors.New("directory does not exist")
)
