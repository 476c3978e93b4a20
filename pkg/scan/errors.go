package scan

import "errors"

var (
	// ErrRootNotFound is returned when the scan root does not exist.
	ErrRootNotFound = errors.New("scan root not found")

	// ErrRootNotDirectory is returned when the scan root is not a directory.
	ErrRootNotDirectory = errors.New("scan root is not a directory")
)
