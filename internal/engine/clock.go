package engine

import "time"

// Timer is a cancellable single-shot timer
type Timer interface {
	Stop() bool
}

// Clock schedules eviction timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
