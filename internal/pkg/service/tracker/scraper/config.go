package scraper

import (
	"time"
)

const (
	DefaultInterval               = 60 * time.Second
	DefaultMaxFetchRetries        = 3
	DefaultRetryBackoff           = 2 * time.Second
	DefaultFetchTimeout           = 30 * time.Second
	DefaultPersistTimeout         = 30 * time.Second
	DefaultConnectionCheckTimeout = 5 * time.Second
	DefaultReconnectTimeout       = 30 * time.Second

	// ReconnectEvery consecutive failures trigger the backend reconnection, once the threshold is exceeded.
	ReconnectEvery = 5
)

type Config struct {
	// Interval is the delay between the end of a run and the start of the next run.
	Interval        time.Duration
	MaxFetchRetries int
	RetryBackoff    time.Duration

	FetchTimeout           time.Duration
	PersistTimeout         time.Duration
	ConnectionCheckTimeout time.Duration
	ReconnectTimeout       time.Duration
}

func NewConfig() Config {
	return Config{
		Interval:               DefaultInterval,
		MaxFetchRetries:        DefaultMaxFetchRetries,
		RetryBackoff:           DefaultRetryBackoff,
		FetchTimeout:           DefaultFetchTimeout,
		PersistTimeout:         DefaultPersistTimeout,
		ConnectionCheckTimeout: DefaultConnectionCheckTimeout,
		ReconnectTimeout:       DefaultReconnectTimeout,
	}
}
