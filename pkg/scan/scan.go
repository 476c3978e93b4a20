// Package scan reconciles files that already exist in the source tree.
//
// A watcher only reports changes made after it starts. The scanner walks the
// source tree once and hands every file to the same code path a CREATED
// notification takes, so a freshly started mirror catches up with the
// library as it is.
//
// Example usage:
//
//	s := scan.New(logger.Default())
//	summary, err := s.Run(ctx, "/media/src", func(p string) reconciler.Outcome {
//	    return dispatcher.Dispatch(watcher.Event{Path: p, Op: watcher.OpCreated})
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(summary.Files, summary.Outcomes[reconciler.OutcomeLinked])
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/0xmhha/media-mirror/pkg/reconciler"
)

// Logger defines the logging interface used by the scan package.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HandleFunc reconciles one existing source file.
type HandleFunc func(path string) reconciler.Outcome

// Summary counts what a scan did.
type Summary struct {
	// Files is the number of files handed to the handler.
	Files int

	// Outcomes counts handler results by outcome.
	Outcomes map[reconciler.Outcome]int
}

// Scanner walks a source tree.
type Scanner struct {
	logger Logger
}

// New creates a new Scanner.
func New(logger Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Walk returns every regular file and symlink below root, sorted by path.
//
// Entries that cannot be read are logged and skipped. Only a missing or
// unreadable root is an error.
func (s *Scanner) Walk(root string) ([]string, error) {
	root, err := checkRoot(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("error walking path",
				"path", p,
				"error", err)
			return nil // Skip but continue walking.
		}

		if d.IsDir() {
			return nil
		}
		if d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0 {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)

	s.logger.Debug("walked source tree",
		"root", root,
		"files_found", len(files))
	return files, nil
}

// Run walks root and calls handle for each file. It stops early, returning
// the partial summary and ctx.Err(), when ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, root string, handle HandleFunc) (Summary, error) {
	summary := Summary{Outcomes: make(map[reconciler.Outcome]int)}

	files, err := s.Walk(root)
	if err != nil {
		return summary, err
	}

	for _, p := range files {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("scan interrupted",
				"processed", summary.Files,
				"total", len(files))
			return summary, err
		}

		summary.Files++
		summary.Outcomes[handle(p)]++
	}

	s.logger.Info("scan complete",
		"root", root,
		"files", summary.Files,
		"failed", summary.Outcomes[reconciler.OutcomeFailed])
	return summary, nil
}

func checkRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrRootNotFound, abs)
		}
		return "", fmt.Errorf("failed to stat directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootNotDirectory, abs)
	}
	return abs, nil
}
