package monitor

import "errors"

var (
	// ErrDispatcherRunning is returned when starting an already running dispatcher.
	ErrDispatcherRunning = errors.New("dispatcher is already running")

	// ErrDispatcherNotRunning is returned when stopping a dispatcher that is not running.
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid dispatcher configuration")
)
