// Package scroll keeps the calendar's panes in lockstep. A Synchronizer
// owns the canonical scroll position, accepts scroll reports from any
// registered pane, and drives every other pane to match at most once per
// frame per axis.
package scroll

import (
	"log/slog"
	"time"

	"github.com/derickschaefer/ratecal/internal/loop"
)

// Axis is a bit set of scroll directions.
type Axis uint8

const (
	// Horizontal is the shared time axis.
	Horizontal Axis = 1 << iota
	// Vertical is the room axis, shared by room grids only.
	Vertical

	Both = Horizontal | Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	case Both:
		return "both"
	}
	return "none"
}

// PaneID identifies a registered pane.
type PaneID string

// Position is an (x, y) scroll offset.
type Position struct {
	Left int `json:"left"`
	Top  int `json:"top"`
}

// Update carries an offset for one or both axes.
type Update struct {
	Left    int
	Top     int
	HasLeft bool
	HasTop  bool
}

// ToLeft returns a horizontal-only update.
func ToLeft(x int) Update { return Update{Left: x, HasLeft: true} }

// ToTop returns a vertical-only update.
func ToTop(y int) Update { return Update{Top: y, HasTop: true} }

// To returns an update for both axes.
func To(x, y int) Update { return Update{Left: x, Top: y, HasLeft: true, HasTop: true} }

// ApplyFunc scrolls a pane programmatically. It receives only the axes the
// pane was registered for.
type ApplyFunc func(Update)

type pane struct {
	id    PaneID
	axes  Axis
	apply ApplyFunc
}

// Synchronizer is not safe for concurrent use; it lives on the control
// thread together with the loop that schedules it.
type Synchronizer struct {
	panes map[PaneID]*pane
	order []PaneID

	pos     Position
	maxLeft int
	maxTop  int
	bounded bool

	hGate, vGate     *loop.Gate
	hSource, vSource PaneID
	hRuns, vRuns     int

	driving PaneID
	active  bool
}

// New returns a Synchronizer that coalesces propagation into frames of
// interval on sched.
func New(sched loop.Scheduler, interval time.Duration) *Synchronizer {
	s := &Synchronizer{panes: make(map[PaneID]*pane)}
	s.hGate = loop.NewGate(sched, interval, func() { s.propagate(Horizontal) })
	s.vGate = loop.NewGate(sched, interval, func() { s.propagate(Vertical) })
	return s
}

// Register adds or replaces a pane and immediately aligns it with the
// canonical position on the axes it follows.
func (s *Synchronizer) Register(id PaneID, axes Axis, apply ApplyFunc) {
	if _, ok := s.panes[id]; !ok {
		s.order = append(s.order, id)
	}
	p := &pane{id: id, axes: axes, apply: apply}
	s.panes[id] = p
	s.drive(p, s.updateFor(axes))
}

// Unregister removes a pane. Unknown ids are ignored.
func (s *Synchronizer) Unregister(id PaneID) {
	if _, ok := s.panes[id]; !ok {
		return
	}
	delete(s.panes, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Panes returns the registered pane ids in registration order.
func (s *Synchronizer) Panes() []PaneID {
	out := make([]PaneID, len(s.order))
	copy(out, s.order)
	return out
}

// Position returns the canonical position.
func (s *Synchronizer) Position() Position { return s.pos }

// SetBounds clamps future offsets to [0, maxLeft] and [0, maxTop].
func (s *Synchronizer) SetBounds(maxLeft, maxTop int) {
	s.maxLeft, s.maxTop, s.bounded = max(maxLeft, 0), max(maxTop, 0), true
	s.pos.Left = s.clampLeft(s.pos.Left)
	s.pos.Top = s.clampTop(s.pos.Top)
}

// OnPaneScroll records a scroll reported by source and schedules
// propagation to every other pane. Reports from a pane that is currently
// being driven are feedback and are dropped. It reports whether the
// canonical position changed.
func (s *Synchronizer) OnPaneScroll(source PaneID, u Update) bool {
	if s.active && source == s.driving {
		return false
	}
	if p, ok := s.panes[source]; ok && p.axes&Vertical == 0 {
		u.HasTop = false
	}

	changed := false
	if u.HasLeft {
		if x := s.clampLeft(u.Left); x != s.pos.Left {
			s.pos.Left = x
			s.hSource = source
			s.hGate.Trigger()
			changed = true
		}
	}
	if u.HasTop {
		if y := s.clampTop(u.Top); y != s.pos.Top {
			s.pos.Top = y
			s.vSource = source
			s.vGate.Trigger()
			changed = true
		}
	}
	return changed
}

// Flush propagates any pending offsets now instead of at the frame edge.
func (s *Synchronizer) Flush() {
	if s.hGate.Pending() {
		s.hGate.Cancel()
		s.propagate(Horizontal)
	}
	if s.vGate.Pending() {
		s.vGate.Cancel()
		s.propagate(Vertical)
	}
}

// Close cancels pending propagation.
func (s *Synchronizer) Close() {
	s.hGate.Cancel()
	s.vGate.Cancel()
}

// Propagations returns how many propagation passes ran on axis.
func (s *Synchronizer) Propagations(axis Axis) int {
	switch axis {
	case Horizontal:
		return s.hRuns
	case Vertical:
		return s.vRuns
	}
	return s.hRuns + s.vRuns
}

func (s *Synchronizer) propagate(axis Axis) {
	source := s.hSource
	if axis == Vertical {
		source = s.vSource
		s.vRuns++
	} else {
		s.hRuns++
	}
	u := s.updateFor(axis)

	for _, id := range s.Panes() {
		p, ok := s.panes[id]
		if !ok || id == source || p.axes&axis == 0 {
			continue
		}
		s.drive(p, u)
	}
	slog.Debug("scroll propagated", "axis", axis, "left", s.pos.Left, "top", s.pos.Top, "source", source)
}

// drive applies u to p with the reentrancy guard held.
func (s *Synchronizer) drive(p *pane, u Update) {
	if p.axes&Horizontal == 0 {
		u.HasLeft = false
	}
	if p.axes&Vertical == 0 {
		u.HasTop = false
	}
	if !u.HasLeft && !u.HasTop {
		return
	}

	prevDriving, prevActive := s.driving, s.active
	s.driving, s.active = p.id, true
	defer func() { s.driving, s.active = prevDriving, prevActive }()
	p.apply(u)
}

func (s *Synchronizer) updateFor(axes Axis) Update {
	return Update{
		Left:    s.pos.Left,
		Top:     s.pos.Top,
		HasLeft: axes&Horizontal != 0,
		HasTop:  axes&Vertical != 0,
	}
}

func (s *Synchronizer) clampLeft(x int) int {
	if s.bounded {
		x = min(x, s.maxLeft)
	}
	return max(x, 0)
}

func (s *Synchronizer) clampTop(y int) int {
	if s.bounded {
		y = min(y, s.maxTop)
	}
	return max(y, 0)
}
