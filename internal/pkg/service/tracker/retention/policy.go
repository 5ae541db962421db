package retention

import (
	"time"
)

const (
	DefaultWindow       = 36 * time.Hour
	DefaultInterval     = time.Hour
	DefaultSweepTimeout = time.Minute
)

// Policy defines which records are expired and how often they are deleted.
type Policy struct {
	// Window is the maximum age of a kept record.
	Window   time.Duration
	Interval time.Duration
	// Timeout of one sweep.
	Timeout time.Duration
}

func NewPolicy() Policy {
	return Policy{
		Window:   DefaultWindow,
		Interval: DefaultInterval,
		Timeout:  DefaultSweepTimeout,
	}
}
