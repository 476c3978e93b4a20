package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/0xmhha/media-mirror/pkg/config"
	"github.com/0xmhha/media-mirror/pkg/debounce"
	"github.com/0xmhha/media-mirror/pkg/logger"
	"github.com/0xmhha/media-mirror/pkg/monitor"
	"github.com/0xmhha/media-mirror/pkg/pathmap"
	"github.com/0xmhha/media-mirror/pkg/preflight"
	"github.com/0xmhha/media-mirror/pkg/reconciler"
	"github.com/0xmhha/media-mirror/pkg/scan"
	"github.com/0xmhha/media-mirror/pkg/watcher"
)

// boltOpenTimeout bounds the wait for another process holding the database.
const boltOpenTimeout = time.Second

// initialize loads configuration, prepares the directories and creates
// the logger. Preflight runs first so the log directory exists when the
// log file is opened.
func initialize(configPath string) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	report := preflight.Check(cfg, preflight.Options{Create: true})

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.LogPath,
		Console:    cfg.Logging.Console,
		TimeFormat: logger.DateTime,
		Fields:     []interface{}{"pid", os.Getpid()},
	})
	report.Log(log)

	if err := report.Err(); err != nil {
		return nil, nil, fmt.Errorf("preflight failed: %w", err)
	}

	return cfg, log, nil
}

// newReconciler builds the reconciler for cfg.
func newReconciler(cfg *config.Config, log logger.Logger) (*reconciler.Reconciler, error) {
	mapper, err := pathmap.New(cfg.SourceDir, cfg.DestDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create path mapper: %w", err)
	}

	pol, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to create extension policy: %w", err)
	}

	return reconciler.New(reconciler.Config{
		MaxRetries: cfg.Performance.MaxRetries,
		RetryDelay: cfg.Performance.RetryDelay,
	}, mapper, pol, log), nil
}

// openStore opens the debounce record store.
func openStore(cfg *config.Config) (debounce.Store, error) {
	if cfg.Storage.DBPath == "" {
		return debounce.NewMemoryStore(), nil
	}
	return debounce.OpenBoltStore(cfg.Storage.DBPath, boltOpenTimeout)
}

// runCommand watches the source tree until interrupted.
type runCommand struct {
	initialScan bool
	configPath  string
}

// Execute runs the run command.
func (c *runCommand) Execute() error {
	cfg, log, err := initialize(c.configPath)
	if err != nil {
		return err
	}

	rec, err := newReconciler(cfg, log)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open debounce store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close debounce store", "error", err)
		}
	}()

	deb := debounce.New(debounce.Config{
		Window:        cfg.Debounce.Window,
		Retention:     cfg.Debounce.Retention,
		SweepInterval: cfg.Debounce.SweepInterval,
	}, store, log)

	w, err := watcher.New(watcher.Config{
		CompatibilityMode: cfg.CompatibilityMode,
		PollInterval:      cfg.PollInterval(),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error("failed to close watcher", "error", err)
		}
	}()

	disp, err := monitor.New(monitor.Config{
		SourceRoot: cfg.SourceDir,
		LockShards: cfg.Performance.LockShards,
	}, w, deb, rec, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := disp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	log.Info("mirroring started",
		"source", cfg.SourceDir,
		"dest", cfg.DestDir,
		"compatibility_mode", cfg.CompatibilityMode)

	if c.initialScan {
		if err := disp.Go(func(ctx context.Context) {
			c.scanExisting(ctx, cfg, disp, log)
		}); err != nil {
			log.Error("failed to start initial scan", "error", err)
		}
	}

	sig := <-sigChan
	log.Info("shutting down", "signal", sig.String())
	cancel()

	if err := disp.Stop(); err != nil {
		log.Error("failed to stop dispatcher", "error", err)
	}
	// Joins the initial scan too, before the store and watcher close.
	disp.Wait()

	stats := disp.Stats()
	log.Info("mirroring stopped",
		"received", stats.Received,
		"dispatched", stats.Dispatched,
		"suppressed", stats.Suppressed,
		"failed", stats.Failed)
	return nil
}

// scanExisting feeds every existing source file through the dispatcher as
// a creation, concurrently with live events.
func (c *runCommand) scanExisting(ctx context.Context, cfg *config.Config, disp *monitor.Dispatcher, log logger.Logger) {
	s := scan.New(log)
	_, err := s.Run(ctx, cfg.SourceDir, func(p string) reconciler.Outcome {
		return disp.Dispatch(watcher.Event{Path: p, Op: watcher.OpCreated, Timestamp: time.Now()})
	})
	if err != nil && ctx.Err() == nil {
		log.Error("initial scan failed", "error", err)
	}
}

// scanCommand reconciles existing files once.
type scanCommand struct {
	configPath string
}

// Execute runs the scan command.
func (c *scanCommand) Execute() error {
	cfg, log, err := initialize(c.configPath)
	if err != nil {
		return err
	}

	rec, err := newReconciler(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := scan.New(log).Run(ctx, cfg.SourceDir, rec.OnCreatedOrMoved)
	printSummary(os.Stdout, summary)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if n := summary.Outcomes[reconciler.OutcomeFailed]; n > 0 {
		return fmt.Errorf("%d files failed to reconcile, see %s", n, cfg.LogPath)
	}
	return nil
}

// printSummary writes one line per outcome, in outcome order.
func printSummary(out io.Writer, summary scan.Summary) {
	fmt.Fprintf(out, "Scanned %d files\n", summary.Files)

	outcomes := make([]reconciler.Outcome, 0, len(summary.Outcomes))
	for o := range summary.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	for _, o := range outcomes {
		fmt.Fprintf(out, "  %-12s %d\n", o.String(), summary.Outcomes[o])
	}
}

// checkCommand validates configuration and directories without changing
// anything.
type checkCommand struct {
	configPath string
	out        io.Writer
}

// Execute runs the check command.
func (c *checkCommand) Execute() error {
	marks := plainMarks
	if f, ok := c.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		marks = terminalMarks
	}

	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		fmt.Fprintf(c.out, "%s configuration: %v\n", marks.fail, err)
		return errors.New("configuration invalid")
	}
	fmt.Fprintf(c.out, "%s configuration\n", marks.ok)

	pol, err := cfg.Policy()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  link: %v\n", pol.LinkExtensions())
	fmt.Fprintf(c.out, "  copy: %v\n", pol.CopyExtensions())

	report := preflight.Check(cfg, preflight.Options{})
	printReport(c.out, report, marks)

	if err := report.Err(); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	return nil
}

// checkMarks are the status prefixes printed by check.
type checkMarks struct {
	ok   string
	fail string
}

var (
	terminalMarks = checkMarks{ok: "✓", fail: "✗"}
	plainMarks    = checkMarks{ok: "[ok]", fail: "[FAIL]"}
)

// printReport writes one line per preflight item.
func printReport(out io.Writer, report preflight.Report, marks checkMarks) {
	for _, it := range report.Items {
		if it.Status == preflight.StatusFailed {
			fmt.Fprintf(out, "%s %s %s: %v\n", marks.fail, it.Name, it.Path, it.Err)
			continue
		}
		fmt.Fprintf(out, "%s %s %s\n", marks.ok, it.Name, it.Path)
	}
}
