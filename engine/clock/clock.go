// Package clock abstracts time so detectors, the alerting escalation
// machine, and the data collector's flush timers can be driven
// deterministically in tests instead of racing the wall clock.
package clock

import "time"

// Clock is the narrow time interface the engine depends on everywhere it
// would otherwise call time.Now or time.Sleep directly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// CancelTimer is a handle to a scheduled one-shot callback. Cancel is
// idempotent and safe to call after the timer has already fired.
type CancelTimer interface {
	Cancel()
}

// Scheduler schedules callbacks to run after a delay, relative to the
// clock's own notion of time. Escalation levels and per-source flush
// timers are both expressed through this interface so they can be
// cancelled (ack/resolve/close, RemoveSource) and driven manually in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) CancelTimer
}

// Real returns the wall-clock Clock backed by the time package.
func Real() Clock { return realClock{} }

// RealScheduler returns the Scheduler backed by time.AfterFunc.
func RealScheduler() Scheduler { return realScheduler{} }

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) CancelTimer {
	t := time.AfterFunc(d, fn)
	return realTimer{t}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Cancel() { r.t.Stop() }
