package health

import (
	"time"
)

const DefaultStaleThreshold = 5 * time.Minute

type Config struct {
	// StaleThreshold is the maximum age of the last successful run of a healthy scraper.
	StaleThreshold time.Duration
	// CheckInterval is the period of the staleness check, it defaults to the StaleThreshold.
	CheckInterval time.Duration
}

func NewConfig() Config {
	return Config{
		StaleThreshold: DefaultStaleThreshold,
		CheckInterval:  DefaultStaleThreshold,
	}
}
