package loop

import "time"

// Gate runs fn at most once per interval. Triggers that arrive while a run
// is pending are absorbed; fn reads whatever state is current when it fires.
type Gate struct {
	sched    Scheduler
	interval time.Duration
	fn       func()
	pending  Timer
}

// NewGate returns a gate that schedules fn on s.
func NewGate(s Scheduler, interval time.Duration, fn func()) *Gate {
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Gate{sched: s, interval: interval, fn: fn}
}

// Trigger schedules fn unless a run is already pending. It reports whether
// a new run was scheduled.
func (g *Gate) Trigger() bool {
	if g.pending != nil {
		return false
	}
	g.pending = g.sched.AfterFunc(g.interval, g.fire)
	return true
}

// Pending reports whether a run is scheduled.
func (g *Gate) Pending() bool { return g.pending != nil }

// Cancel drops the pending run, if any.
func (g *Gate) Cancel() {
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}

func (g *Gate) fire() {
	g.pending = nil
	g.fn()
}
