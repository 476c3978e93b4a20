package policy

import "errors"

// Common errors returned by the policy package.
var (
	// ErrOverlappingExtensions is returned when an extension is configured
	// for both linking and copying.
	ErrOverlappingExtensions = errors.New("extension configured for both link and copy")

	// ErrInvalidExtension is returned when an extension does not start with a dot.
	ErrInvalidExtension = errors.New("invalid extension: must start with '.'")
)
