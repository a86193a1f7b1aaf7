// Package loop is the cooperative control thread of the calendar: a queue
// of posted tasks plus a deadline-ordered timer set, driven by whoever owns
// the clock (frame ticks in the terminal UI, Advance in tests).
//
// Tasks and timers always run on the goroutine that calls RunDue; Post is
// the only method meant to be called from other goroutines.
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// FrameInterval is the default coalescing window (one 60 Hz frame).
const FrameInterval = 16 * time.Millisecond

// Timer is a cancelable pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was still pending.
	Stop() bool
}

// Scheduler schedules a callback to run after d on the control thread.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Loop is a manually clocked Scheduler with a goroutine-safe task queue.
type Loop struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers timerHeap
	posted []func()
	wake   chan struct{}
}

// New returns a Loop whose clock starts at start.
func New(start time.Time) *Loop {
	return &Loop{now: start, wake: make(chan struct{}, 1)}
}

// Now returns the loop clock.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Post queues f to run on the next RunDue. Safe from any goroutine.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	l.posted = append(l.posted, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules f to run once the clock reaches now+d.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	t := &timer{loop: l, at: l.now.Add(d), seq: l.seq, fn: f, index: -1}
	heap.Push(&l.timers, t)
	return t
}

// Pending returns the number of queued tasks and live timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.posted) + l.timers.Len()
}

// Advance moves the clock forward by d and runs everything that is due.
func (l *Loop) Advance(d time.Duration) int {
	return l.RunDue(l.Now().Add(d))
}

// RunDue sets the clock to now (it never moves backwards), then runs posted
// tasks followed by due timers in deadline order. It returns the number of
// callbacks executed.
func (l *Loop) RunDue(now time.Time) int {
	l.mu.Lock()
	if now.After(l.now) {
		l.now = now
	}
	l.mu.Unlock()

	ran := 0
	for {
		f := l.next()
		if f == nil {
			return ran
		}
		f()
		ran++
	}
}

// next pops the next runnable callback, or nil when nothing is due.
func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.posted) > 0 {
		f := l.posted[0]
		l.posted[0] = nil
		l.posted = l.posted[1:]
		return f
	}
	if l.timers.Len() > 0 && !l.timers[0].at.After(l.now) {
		t := heap.Pop(&l.timers).(*timer)
		return t.fn
	}
	return nil
}

// Wait blocks until a task is posted or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	ready := len(l.posted) > 0
	l.mu.Unlock()
	if ready {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.wake:
		return nil
	}
}

// ─── timers ───────────────────────────────────────────────────────────────────

type timer struct {
	loop  *Loop
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

func (t *timer) Stop() bool {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
