package pathmap

import (
	"errors"
	"fmt"
)

// ErrPathOutsideRoot is returned when a path is not contained in the source root.
var ErrPathOutsideRoot = errors.New("path outside source root")

// ErrParentNotDirectory is returned when a non-directory occupies a
// destination parent path.
var ErrParentNotDirectory = errors.New("destination parent is not a directory")

// OutsideRootError reports a source path that does not live under Root.
type OutsideRootError struct {
	Path string
	Root string
}

func (e *OutsideRootError) Error() string {
	return fmt.Sprintf("%s: %s not under %s", ErrPathOutsideRoot, e.Path, e.Root)
}

// Unwrap lets errors.Is match ErrPathOutsideRoot.
func (e *OutsideRootError) Unwrap() error {
	return ErrPathOutsideRoot
}
