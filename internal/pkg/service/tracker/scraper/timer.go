package scraper

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clockTimer implements the backoff.Timer interface on top of the clockwork.Clock.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(duration time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(duration)
	} else {
		t.timer.Reset(duration)
	}
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
