// Package policy decides how a source file is mirrored.
//
// A Policy holds two disjoint extension sets. Files whose extension is in the
// link set are mirrored as symlinks, files in the copy set are mirrored as
// physical copies, and everything else is ignored.
//
// Example usage:
//
//	pol, err := policy.New([]string{".mkv", ".mp4"}, []string{".nfo", ".jpg"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pol.Classify("/media/show/ep1.MKV") // policy.ActionLink
package policy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Action is the mirroring action for a file.
type Action int

// Mirroring actions.
const (
	ActionIgnore Action = iota // Not mirrored
	ActionLink                 // Mirrored as a symlink to the source
	ActionCopy                 // Mirrored as an independent copy
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionLink:
		return "LINK"
	case ActionCopy:
		return "COPY"
	default:
		return "IGNORE"
	}
}

// Policy maps file extensions to actions. It is immutable after New.
type Policy struct {
	link map[string]struct{}
	copy map[string]struct{}
}

// New builds a Policy from link and copy extension lists.
//
// Extensions are lowercased. An extension present in both lists is a
// configuration error.
func New(linkExts, copyExts []string) (*Policy, error) {
	p := &Policy{
		link: make(map[string]struct{}, len(linkExts)),
		copy: make(map[string]struct{}, len(copyExts)),
	}

	for _, ext := range linkExts {
		norm, err := normalize(ext)
		if err != nil {
			return nil, err
		}
		p.link[norm] = struct{}{}
	}

	for _, ext := range copyExts {
		norm, err := normalize(ext)
		if err != nil {
			return nil, err
		}
		if _, dup := p.link[norm]; dup {
			return nil, fmt.Errorf("%w: %s", ErrOverlappingExtensions, norm)
		}
		p.copy[norm] = struct{}{}
	}

	return p, nil
}

// ParseExtensions splits a comma-separated extension list.
//
// Blank entries are skipped; every other entry must start with a dot.
func ParseExtensions(csv string) ([]string, error) {
	var exts []string
	for _, raw := range strings.Split(csv, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		norm, err := normalize(trimmed)
		if err != nil {
			return nil, err
		}
		exts = append(exts, norm)
	}
	return exts, nil
}

// Classify returns the action for path. It has no side effects.
func (p *Policy) Classify(path string) Action {
	ext := Extension(path)
	if ext == "" {
		return ActionIgnore
	}
	if _, ok := p.link[ext]; ok {
		return ActionLink
	}
	if _, ok := p.copy[ext]; ok {
		return ActionCopy
	}
	return ActionIgnore
}

// LinkExtensions returns the sorted link extension set.
func (p *Policy) LinkExtensions() []string {
	return sortedKeys(p.link)
}

// CopyExtensions returns the sorted copy extension set.
func (p *Policy) CopyExtensions() []string {
	return sortedKeys(p.copy)
}

// Extension returns the lowercase extension of path including the dot,
// or an empty string when there is none.
func Extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func normalize(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if len(ext) < 2 || ext[0] != '.' {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	return ext, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
