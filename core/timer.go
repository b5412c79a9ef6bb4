package core

import "time"

// Sleeper suspends the calling goroutine with millisecond granularity
type Sleeper interface {
	SleepMillis(ms uint32)
}

// SleepFunc adapts a function to the Sleeper interface
type SleepFunc func(ms uint32)

func (f SleepFunc) SleepMillis(ms uint32) {
	f(ms)
}

// SystemSleeper sleeps on the Go runtime timer. Under TinyGo this yields to
// the scheduler, so other goroutines keep running.
var SystemSleeper Sleeper = SleepFunc(func(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
})

// MillisToDuration converts milliseconds to a time.Duration
func MillisToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
