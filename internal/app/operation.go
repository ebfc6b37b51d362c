package app

import (
	"time"

	"photopool/internal/pool"
)

// Operation identifies one CLI invocation. Its ID tags every log line the
// invocation writes, so a long-running serve and ad-hoc operator commands can
// share one log file.
type Operation struct {
	ID        string
	Command   string
	StartedAt time.Time
}

// NewOperation creates an Operation for command started at clock.Now().
func NewOperation(command string, clock pool.Clock) *Operation {
	if clock == nil {
		clock = pool.RealClock{}
	}
	now := clock.Now().UTC()
	return &Operation{
		ID:        command + "-" + now.Format("20060102T150405Z"),
		Command:   command,
		StartedAt: now,
	}
}

// Elapsed returns how long the operation has been running.
func (op *Operation) Elapsed(clock pool.Clock) time.Duration {
	if clock == nil {
		clock = pool.RealClock{}
	}
	return clock.Now().Sub(op.StartedAt)
}
