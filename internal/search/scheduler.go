package search

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Cancel prevents the callback from running if it has not started yet.
	Cancel() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	ScheduleAfter(d time.Duration, fn func()) Timer
}

// RealScheduler schedules on the runtime timer heap.
type RealScheduler struct{}

// ScheduleAfter implements Scheduler.
func (RealScheduler) ScheduleAfter(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Cancel() bool {
	return r.t.Stop()
}
