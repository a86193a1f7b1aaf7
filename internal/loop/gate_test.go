package loop_test

import (
	"testing"
	"time"

	"github.com/derickschaefer/ratecal/internal/loop"
)

func TestGateCoalescesWithinFrame(t *testing.T) {
	l := loop.New(epoch)
	runs := 0
	g := loop.NewGate(l, loop.FrameInterval, func() { runs++ })

	if !g.Trigger() {
		t.Fatal("first trigger should schedule")
	}
	for i := 0; i < 10; i++ {
		if g.Trigger() {
			t.Fatal("triggers inside the frame should be absorbed")
		}
		l.Advance(time.Millisecond)
	}
	l.Advance(loop.FrameInterval)
	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
	if g.Pending() {
		t.Error("gate should be idle after firing")
	}

	g.Trigger()
	l.Advance(loop.FrameInterval)
	if runs != 2 {
		t.Errorf("next frame should run again, got %d runs", runs)
	}
}

func TestGateCancel(t *testing.T) {
	l := loop.New(epoch)
	runs := 0
	g := loop.NewGate(l, 0, func() { runs++ })
	g.Trigger()
	g.Cancel()
	l.Advance(time.Second)
	if runs != 0 {
		t.Errorf("canceled gate ran %d times", runs)
	}
	if !g.Trigger() {
		t.Error("gate should accept a trigger after Cancel")
	}
}
