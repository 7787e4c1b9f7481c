// Package timer provides cancellable periodic tasks over a swappable clock so that
// sampling and polling loops can be driven by virtual time in tests.
package timer

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Task is a handle to a scheduled periodic function.
type Task interface {
	Cancel()
}

type Scheduler interface {
	Clock
	// Every runs fn each interval until the returned task is cancelled.
	Every(interval time.Duration, fn func()) Task
}

// Real schedules on wall-clock time using time.Ticker.
type Real struct{}

func NewReal() *Real {
	return &Real{}
}

func (r *Real) Now() time.Time {
	return time.Now().UTC()
}

func (r *Real) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()

	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
