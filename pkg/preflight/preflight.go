// Package preflight checks the filesystem before watching starts.
//
// The source directory must exist. The destination directory, the log
// directory and the debounce database directory are created when missing,
// since the mirror can only be built once they exist.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xmhha/media-mirror/pkg/config"
	"github.com/0xmhha/media-mirror/pkg/logger"
)

// Status is the result of one check.
type Status int

// Check statuses.
const (
	StatusOK      Status = iota // Present
	StatusCreated               // Was missing and has been created
	StatusFailed                // Missing or unusable
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCreated:
		return "created"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is the result of checking one path.
type Item struct {
	Name   string
	Path   string
	Status Status
	Err    error
}

// Report collects the results of a preflight run.
type Report struct {
	Items []Item
}

// Err returns the failures joined into one error, or nil.
func (r Report) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", it.Name, it.Err))
		}
	}
	return errors.Join(errs...)
}

// Options controls a preflight run.
type Options struct {
	// Create makes missing directories instead of reporting them as failures.
	Create bool
}

// Check verifies the directories cfg refers to.
func Check(cfg *config.Config, opts Options) Report {
	var report Report

	report.Items = append(report.Items, checkSource(cfg.SourceDir))
	report.Items = append(report.Items, ensureDir("destination", cfg.DestDir, opts.Create))
	report.Items = append(report.Items, ensureDir("log directory", filepath.Dir(cfg.LogPath), opts.Create))
	if cfg.Storage.DBPath != "" {
		report.Items = append(report.Items, ensureDir("database directory", filepath.Dir(cfg.Storage.DBPath), opts.Create))
	}

	return report
}

// Log writes one line per item. Check runs before the log file exists, so
// the report is logged once a logger is available.
func (r Report) Log(log logger.Logger) {
	for _, it := range r.Items {
		switch it.Status {
		case StatusCreated:
			log.Info("created missing directory", "check", it.Name, "path", it.Path)
		case StatusFailed:
			log.Error("preflight check failed", "check", it.Name, "path", it.Path, "error", it.Err)
		default:
			log.Debug("preflight check passed", "check", it.Name, "path", it.Path)
		}
	}
}

func checkSource(dir string) Item {
	it := Item{Name: "source", Path: dir}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		it.Status, it.Err = StatusFailed, ErrSourceMissing
	case err != nil:
		it.Status, it.Err = StatusFailed, err
	case !info.IsDir():
		it.Status, it.Err = StatusFailed, ErrNotDirectory
	}
	return it
}

func ensureDir(name, dir string, create bool) Item {
	it := Item{Name: name, Path: dir}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return it
	case err == nil:
		it.Status, it.Err = StatusFailed, ErrNotDirectory
		return it
	case !os.IsNotExist(err):
		it.Status, it.Err = StatusFailed, err
		return it
	}

	if !create {
		it.Status, it.Err = StatusFailed, ErrDirectoryMissing
		return it
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		it.Status, it.Err = StatusFailed, err
		return it
	}
	it.Status = StatusCreated
	return it
}
