// Package gesture converts continuous drag input into scroll offsets.
package gesture

import (
	"math"

	"github.com/derickschaefer/ratecal/internal/scroll"
)

// DefaultGain doubles pointer travel.
const DefaultGain = 2.0

// SourceID is the pane id gesture-driven scrolls are reported under.
const SourceID scroll.PaneID = "gesture"

// Point is a pointer location in viewport coordinates.
type Point struct {
	X, Y float64
}

// Target receives translated scrolls. *scroll.Synchronizer satisfies it.
type Target interface {
	Position() scroll.Position
	OnPaneScroll(source scroll.PaneID, u scroll.Update) bool
}

// Translator tracks one drag at a time. Motion is relative: each Move is
// measured from the previous point, not from where the drag began.
type Translator struct {
	target Target
	source scroll.PaneID
	gain   float64

	ref    Point
	active bool

	// carry keeps the fractional remainder so slow drags still scroll.
	carryX, carryY float64
}

// New returns a Translator feeding target with the given gain.
// A non-positive gain falls back to DefaultGain.
func New(target Target, gain float64) *Translator {
	if gain <= 0 {
		gain = DefaultGain
	}
	return &Translator{target: target, source: SourceID, gain: gain}
}

// Begin records the reference point for a new drag.
func (t *Translator) Begin(p Point) {
	t.ref = p
	t.active = true
	t.carryX, t.carryY = 0, 0
}

// Move forwards the delta since the previous point and returns the update
// sent to the target. Moves outside a drag are ignored.
func (t *Translator) Move(p Point) (scroll.Update, bool) {
	if !t.active {
		return scroll.Update{}, false
	}
	dx := (t.ref.X-p.X)*t.gain + t.carryX
	dy := (t.ref.Y-p.Y)*t.gain + t.carryY
	t.ref = p

	stepX, stepY := math.Trunc(dx), math.Trunc(dy)
	t.carryX, t.carryY = dx-stepX, dy-stepY
	if stepX == 0 && stepY == 0 {
		return scroll.Update{}, false
	}

	pos := t.target.Position()
	u := scroll.To(pos.Left+int(stepX), pos.Top+int(stepY))
	t.target.OnPaneScroll(t.source, u)
	return u, true
}

// End finishes the drag.
func (t *Translator) End() {
	t.active = false
	t.carryX, t.carryY = 0, 0
}

// Active reports whether a drag is in progress.
func (t *Translator) Active() bool { return t.active }
