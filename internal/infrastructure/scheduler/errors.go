package scheduler

import "errors"

// Errors returned by the worker pool. Overdue sweeps treat a full queue as
// a skipped tenant for this tick.
var (
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	ErrJobQueueFull        = errors.New("scheduler: job queue full")
	ErrInvalidConfig       = errors.New("scheduler: invalid configuration")
)
