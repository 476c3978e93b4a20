package reconciler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/0xmhha/media-mirror/pkg/logger"
	"github.com/0xmhha/media-mirror/pkg/pathmap"
	"github.com/0xmhha/media-mirror/pkg/policy"
)

// Reconciler mirrors source files into the destination tree.
type Reconciler struct {
	config Config
	mapper *pathmap.Mapper
	policy *policy.Policy
	logger logger.Logger
}

// New creates a Reconciler.
func New(cfg Config, mapper *pathmap.Mapper, pol *policy.Policy, log logger.Logger) *Reconciler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	return &Reconciler{
		config: cfg,
		mapper: mapper,
		policy: pol,
		logger: log,
	}
}

// OnCreatedOrMoved mirrors a file that appeared under the source root,
// either created in place or moved there. Existing mirrors are left alone.
func (r *Reconciler) OnCreatedOrMoved(path string) Outcome {
	return r.Reconcile(path, false)
}

// OnMoved mirrors a file renamed into place. A rename over an existing
// file replaces its content, so an existing copy is overwritten; links are
// handled as in OnCreatedOrMoved.
func (r *Reconciler) OnMoved(path string) Outcome {
	return r.Reconcile(path, true)
}

// OnModified refreshes the copy of a modified copy-class file.
//
// Link-class files are not re-materialized: the symlink already points at
// the changed file.
func (r *Reconciler) OnModified(path string) Outcome {
	switch r.policy.Classify(path) {
	case policy.ActionCopy:
		return r.Reconcile(path, true)
	case policy.ActionLink:
		r.logger.Info("link source changed, link left in place", "source", path)
		return OutcomeSkipped
	default:
		r.logger.Debug("ignored", "source", path, "event", "modified")
		return OutcomeIgnored
	}
}

// OnDeleted removes the mirror of a deleted source file.
//
// A dangling symlink is removed, as is any other entry at the mapped path.
// A mirror that is already gone is not an error.
func (r *Reconciler) OnDeleted(path string) Outcome {
	dest, err := r.mapper.Map(path)
	if err != nil {
		r.logger.Error("cannot map deleted path", "source", path, "error", err)
		return OutcomeFailed
	}

	info, err := os.Lstat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("mirror already absent", "source", path, "dest", dest)
			return OutcomeSkipped
		}
		r.logger.Error("failed to inspect mirror", "source", path, "dest", dest, "error", err)
		return OutcomeFailed
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		if _, statErr := os.Stat(dest); errors.Is(statErr, fs.ErrNotExist) {
			if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				r.logger.Error("failed to remove broken symlink", "source", path, "dest", dest, "error", rmErr)
				return OutcomeFailed
			}
			r.logger.Info("broken symlink removed", "source", path, "dest", dest)
			return OutcomeRemoved
		}
	}

	if err := os.Remove(dest); err != nil {
		if info.IsDir() {
			// Files the source never had are not ours to delete.
			r.logger.Info("mirror directory not empty, left in place", "source", path, "dest", dest)
			return OutcomeSkipped
		}
		if errors.Is(err, fs.ErrNotExist) {
			return OutcomeSkipped
		}
		r.logger.Error("failed to remove mirror", "source", path, "dest", dest, "error", err)
		return OutcomeFailed
	}
	r.logger.Info("mirror removed", "source", path, "dest", dest)
	return OutcomeRemoved
}

// Reconcile classifies path and creates its mirror. With overwrite set an
// existing copy is replaced; links are never replaced.
func (r *Reconciler) Reconcile(path string, overwrite bool) Outcome {
	action := r.policy.Classify(path)
	if action == policy.ActionIgnore {
		r.logger.Debug("ignored", "source", path)
		return OutcomeIgnored
	}

	source, err := filepath.Abs(path)
	if err != nil {
		r.logger.Error("cannot resolve source", "source", path, "error", err)
		return OutcomeFailed
	}

	srcInfo, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Info("source vanished, skipped", "source", source)
			return OutcomeSkipped
		}
		r.logger.Error("failed to stat source", "source", source, "error", err)
		return OutcomeFailed
	}
	if srcInfo.IsDir() {
		return OutcomeIgnored
	}

	dest, err := r.mapper.Resolve(source)
	if err != nil {
		r.logger.Error("cannot resolve destination", "source", source, "error", err)
		return OutcomeFailed
	}

	log := r.logger.With("source", source, "dest", dest, "action", action.String())

	switch action {
	case policy.ActionLink:
		return r.link(log, source, dest)
	default:
		return r.snapshot(log, source, dest, srcInfo, overwrite)
	}
}

// link creates dest as a symlink to source unless something already exists there.
func (r *Reconciler) link(log logger.Logger, source, dest string) Outcome {
	if _, err := os.Lstat(dest); err == nil {
		log.Info("already exists, skipped")
		return OutcomeSkipped
	}

	err := r.retry(func() error {
		return os.Symlink(source, dest)
	})
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			log.Info("already exists, skipped")
			return OutcomeSkipped
		}
		log.Error("failed to create symlink", "error", err)
		return OutcomeFailed
	}

	log.Info("symlink created")
	return OutcomeLinked
}

// snapshot writes a copy of source to dest.
func (r *Reconciler) snapshot(log logger.Logger, source, dest string, srcInfo fs.FileInfo, overwrite bool) Outcome {
	existed := false
	if _, err := os.Lstat(dest); err == nil {
		if !overwrite {
			log.Info("already exists, skipped")
			return OutcomeSkipped
		}
		existed = true
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Error("failed to remove existing copy", "error", rmErr)
		}
	}

	var written int64
	err := r.retry(func() error {
		n, copyErr := copyFile(source, dest, srcInfo)
		written = n
		return copyErr
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("source vanished, skipped")
			return OutcomeSkipped
		}
		log.Error("failed to copy file", "error", err)
		return OutcomeFailed
	}

	if existed {
		log.Info("copy overwritten", "bytes", written)
		return OutcomeOverwritten
	}
	log.Info("file copied", "bytes", written)
	return OutcomeCopied
}

// retry runs op, retrying transient failures with exponential backoff.
func (r *Reconciler) retry(op func() error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = r.config.RetryDelay
	schedule.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		if attempt <= r.config.MaxRetries {
			r.logger.Warn("transient I/O error, retrying", "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithMaxRetries(schedule, uint64(r.config.MaxRetries)))
}

// copyFile copies content, permissions and modification time of source to
// dest. Data is written to a temporary file in dest's directory and renamed
// into place, so dest never holds a partial copy.
func copyFile(source, dest string, srcInfo fs.FileInfo) (int64, error) {
	if !srcInfo.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrSourceNotRegular, source)
	}

	in, err := os.Open(source) // nolint:gosec
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", source, err)
	}
	defer in.Close()

	dir := filepath.Dir(dest)
	out, err := os.CreateTemp(dir, ".media-mirror-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}

	tempPath := out.Name()
	defer func() {
		if tempPath != "" {
			_ = os.Remove(tempPath) // nolint:errcheck
		}
	}()

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to copy content from %s: %w", source, err)
	}

	if err := out.Chmod(srcInfo.Mode().Perm()); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to set permissions on %s: %w", tempPath, err)
	}

	// Close before Chtimes: flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		return 0, fmt.Errorf("failed to move copy into place at %s: %w", dest, err)
	}
	tempPath = ""

	return n, nil
}
