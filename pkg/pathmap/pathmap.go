// Package pathmap maps paths in the source tree onto the destination tree.
//
// The destination keeps the source's relative layout:
//
//	m, _ := pathmap.New("/media/src", "/media/dst")
//	dst, _ := m.Resolve("/media/src/show/ep1.mkv")
//	// dst == "/media/dst/show/ep1.mkv", and /media/dst/show exists
package pathmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// dirPerm is the permission used for created destination directories.
const dirPerm = 0o755

// Mapper translates source paths to destination paths.
type Mapper struct {
	sourceRoot string
	destRoot   string

	// mkdirGroup collapses concurrent creation of the same directory.
	mkdirGroup singleflight.Group
}

// New creates a Mapper. Both roots are made absolute and cleaned.
func New(sourceRoot, destRoot string) (*Mapper, error) {
	src, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root %s: %w", sourceRoot, err)
	}
	dst, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination root %s: %w", destRoot, err)
	}

	return &Mapper{
		sourceRoot: src,
		destRoot:   dst,
	}, nil
}

// SourceRoot returns the absolute source root.
func (m *Mapper) SourceRoot() string {
	return m.sourceRoot
}

// DestRoot returns the absolute destination root.
func (m *Mapper) DestRoot() string {
	return m.destRoot
}

// Map returns the destination path for sourcePath without touching the
// filesystem. It fails with *OutsideRootError when sourcePath is not inside
// the source root.
func (m *Mapper) Map(sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", sourcePath, err)
	}

	rel, err := filepath.Rel(m.sourceRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &OutsideRootError{Path: abs, Root: m.sourceRoot}
	}

	return filepath.Join(m.destRoot, rel), nil
}

// Resolve maps sourcePath and makes sure the destination's parent
// directory chain exists.
func (m *Mapper) Resolve(sourcePath string) (string, error) {
	dest, err := m.Map(sourcePath)
	if err != nil {
		return "", err
	}
	if err := m.EnsureParent(dest); err != nil {
		return "", err
	}
	return dest, nil
}

// EnsureParent creates every missing directory above destPath.
//
// Requests for the same directory that overlap in time run MkdirAll once.
// A directory created concurrently by someone else is not an error.
func (m *Mapper) EnsureParent(destPath string) error {
	dir := filepath.Dir(destPath)

	_, err, _ := m.mkdirGroup.Do(dir, func() (interface{}, error) {
		info, statErr := os.Stat(dir)
		if statErr == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("%w: %s", ErrParentNotDirectory, dir)
			}
			return nil, nil
		}

		if mkErr := os.MkdirAll(dir, dirPerm); mkErr != nil {
			// Lost a race with another creator.
			if errors.Is(mkErr, os.ErrExist) {
				if info, again := os.Stat(dir); again == nil && info.IsDir() {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, mkErr)
		}
		return nil, nil
	})

	return err
}
