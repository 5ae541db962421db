package scraper

import (
	"time"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// JobRun describes one scheduled execution of the job.
type JobRun struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	// Attempts is the number of fetch attempts.
	Attempts int
	// Written is the number of persisted records.
	Written int
	Err     error
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Running             bool
	SuccessCount        int64
	ErrorCount          int64
	ConsecutiveFailures int64
	// LastSuccessTime is zero if there is no successful run.
	LastSuccessTime time.Time
	// StartedAt is the time of the last Start call.
	StartedAt time.Time
}
