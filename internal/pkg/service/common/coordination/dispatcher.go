package coordination

import (
	"sync"
)

// Dispatcher invokes callbacks serially in a single goroutine, in the order they were dispatched.
// Dispatch never blocks the caller.
type Dispatcher struct {
	lock    sync.Mutex
	queue   []func()
	notify  chan struct{}
	closed  bool
	stopped chan struct{}
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{notify: make(chan struct{}, 1), stopped: make(chan struct{})}
	go d.run()
	return d
}

func (d *Dispatcher) Dispatch(fn func()) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Close drops pending callbacks, a running callback is not interrupted.
func (d *Dispatcher) Close() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.queue = nil
	close(d.notify)
}

// Stopped is closed when the dispatcher goroutine exits.
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.stopped
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for range d.notify {
		for {
			d.lock.Lock()
			if len(d.queue) == 0 || d.closed {
				d.lock.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue = d.queue[1:]
			d.lock.Unlock()
			fn()
		}
	}
}
