package reconciler

import (
	"errors"
	"io/fs"
)

// ErrSourceNotRegular is returned when a copy source is not a regular file.
var ErrSourceNotRegular = errors.New("source is not a regular file")

// isPermanent reports whether retrying err cannot help.
func isPermanent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, ErrSourceNotRegular)
}
