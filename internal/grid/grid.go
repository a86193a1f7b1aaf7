// Package grid composes the calendar: a month header, a date header and one
// inventory/rate pane per room category, all windowed by virtual axes and
// kept in lockstep by a scroll.Synchronizer. The room list grows through a
// pagination.Controller whenever the trailing load-more sentinel scrolls
// into view.
//
// A Grid lives on the control thread of its loop.Loop. Only fetches leave
// that thread; their results come back through Loop.Post.
package grid

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/derickschaefer/ratecal/internal/gesture"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
	"github.com/derickschaefer/ratecal/internal/util"
	"github.com/derickschaefer/ratecal/internal/virtual"
)

// Header pane ids.
const (
	PaneMonths scroll.PaneID = "months"
	PaneDates  scroll.PaneID = "dates"
)

// SentinelHeight is the number of lines the load-more row occupies.
const SentinelHeight = 1

// DefaultCellWidth is the width of one day column in terminal cells.
const DefaultCellWidth = 8

// RoomPane returns the pane id of a room category.
func RoomPane(roomID string) scroll.PaneID { return scroll.PaneID("room:" + roomID) }

// BlockHeight is the number of lines a room occupies: its inventory row,
// one row per rate plan and a separator.
func BlockHeight(room model.RoomCategory) int { return 1 + len(room.RatePlans) + 1 }

// Options configures a Grid.
type Options struct {
	CellWidth     int
	Overscan      int
	FrameInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.CellWidth <= 0 {
		o.CellWidth = DefaultCellWidth
	}
	if o.Overscan < 0 {
		o.Overscan = 0
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = loop.FrameInterval
	}
	return o
}

// Pane is one independently scrollable region. Its offsets are what the
// pane currently shows, which may trail the canonical position by at most
// one frame.
type Pane struct {
	ID      scroll.PaneID
	Axes    scroll.Axis
	Left    int
	Top     int
	Applied int // programmatic scrolls received
}

// roomIndex holds a room's calendars keyed by date.
type roomIndex struct {
	inv   map[string]model.InventoryDay
	rates []map[string]model.RateDay
}

// Grid is the composite calendar.
type Grid struct {
	opts Options
	loop *loop.Loop
	sync *scroll.Synchronizer
	ctrl *pagination.Controller

	axes   timeaxis.Model
	axis   *timeaxis.Axis
	cols   *virtual.Axis
	months *virtual.Axis
	rows   *virtual.Axis
	body   virtual.Grid // cols × rows of the room area

	rooms   []model.RoomCategory
	index   []roomIndex
	align   util.MultiError
	panes   map[scroll.PaneID]*Pane
	mounted map[scroll.PaneID]bool

	width, height int

	gen        uint64
	blocks     map[string]cachedBlock
	blockBuild int
}

// New returns an empty grid driven by l. Header panes are registered
// immediately; room panes are mounted as their rows become visible.
func New(ctrl *pagination.Controller, l *loop.Loop, opts Options) *Grid {
	opts = opts.withDefaults()
	g := &Grid{
		opts:    opts,
		loop:    l,
		sync:    scroll.New(l, opts.FrameInterval),
		ctrl:    ctrl,
		panes:   make(map[scroll.PaneID]*Pane),
		mounted: make(map[scroll.PaneID]bool),
		blocks:  make(map[string]cachedBlock),
	}
	g.cols = virtual.NewFixed(0, opts.CellWidth, opts.Overscan)
	g.months = virtual.NewVariable(0, g.monthWidth, opts.Overscan)
	g.rows = virtual.NewVariable(0, g.rowHeight, opts.Overscan)
	g.body = virtual.Grid{Cols: g.cols, Rows: g.rows}

	g.register(PaneMonths, scroll.Horizontal)
	g.register(PaneDates, scroll.Horizontal)
	return g
}

func (g *Grid) monthWidth(i int) int { return g.axis.Months[i].Days * g.opts.CellWidth }

func (g *Grid) rowHeight(i int) int { return BlockHeight(g.rooms[i]) }

// register adds a pane whose apply callback records driven offsets.
func (g *Grid) register(id scroll.PaneID, axes scroll.Axis) *Pane {
	p := &Pane{ID: id, Axes: axes}
	g.panes[id] = p
	g.sync.Register(id, axes, func(u scroll.Update) {
		if u.HasLeft {
			p.Left = u.Left
		}
		if u.HasTop {
			p.Top = u.Top
		}
		p.Applied++
	})
	return p
}

func (g *Grid) unregister(id scroll.PaneID) {
	g.sync.Unregister(id)
	delete(g.panes, id)
}

// ─── Query ────────────────────────────────────────────────────────────────────

// SetQuery establishes the property and date range. An invalid range is
// rejected before the controller is touched. On a new query the room list
// and every room pane are dropped and the returned ticket fetches page one.
func (g *Grid) SetQuery(q model.Query) (*pagination.Ticket, error) {
	axis, err := g.axes.Axis(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	q.Start, q.End = axis.Start, axis.End

	t, err := g.ctrl.SetQuery(q)
	if err != nil || t == nil {
		return t, err
	}

	g.axis = axis
	g.gen++
	g.cols.SetCount(axis.Len())
	g.months.SetCount(len(axis.Months))
	g.months.Invalidate(0)

	for id := range g.mounted {
		g.unregister(id)
	}
	g.mounted = make(map[scroll.PaneID]bool)
	g.rooms, g.index = nil, nil
	g.rows.SetCount(0)
	g.rows.Invalidate(0)
	g.align = util.MultiError{}
	g.blocks = make(map[string]cachedBlock)

	g.updateBounds()
	slog.Debug("grid query set", "query", q.Key(), "days", axis.Len(), "months", len(axis.Months))
	return t, nil
}

// Axis returns the current time axis, or nil before the first query.
func (g *Grid) Axis() *timeaxis.Axis { return g.axis }

// Controller returns the pagination controller feeding the grid.
func (g *Grid) Controller() *pagination.Controller { return g.ctrl }

// Synchronizer returns the scroll synchronizer.
func (g *Grid) Synchronizer() *scroll.Synchronizer { return g.sync }

// Rooms returns the room categories currently laid out.
func (g *Grid) Rooms() []model.RoomCategory { return g.rooms }

// Warnings returns alignment problems found in the loaded rooms.
func (g *Grid) Warnings() []string { return g.align.Strings() }

// ─── Geometry ─────────────────────────────────────────────────────────────────

// Resize sets the measured viewport: width of the scrollable time area in
// cells and height of the room area in lines.
func (g *Grid) Resize(width, height int) {
	g.width, g.height = max(width, 0), max(height, 0)
	g.updateBounds()
	g.mount()
}

// Viewport returns the measured viewport.
func (g *Grid) Viewport() (width, height int) { return g.width, g.height }

// ContentHeight is the room area's total extent including the sentinel row
// while more pages may exist.
func (g *Grid) ContentHeight() int {
	h := g.rows.TotalExtent()
	if g.sentinelShown() {
		h += SentinelHeight
	}
	return h
}

// ContentWidth is the total extent of the time axis.
func (g *Grid) ContentWidth() int { return g.cols.TotalExtent() }

func (g *Grid) updateBounds() {
	maxTop := max(g.ContentHeight()-g.height, 0)
	g.sync.SetBounds(g.cols.MaxOffset(g.width), maxTop)
	for _, p := range g.panes {
		p.Left = min(p.Left, g.cols.MaxOffset(g.width))
		p.Top = min(p.Top, maxTop)
	}
}

// ─── Dataset ──────────────────────────────────────────────────────────────────

// SameRooms reports whether two room lists have the same length and the same
// ids in the same order. Layout is recomputed only when it is false.
func SameRooms(a, b []model.RoomCategory) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// Refresh pulls the controller's dataset into the layout. It reports
// whether the room list changed.
func (g *Grid) Refresh() bool {
	rooms := g.ctrl.Dataset().Rooms()
	changed := !SameRooms(g.rooms, rooms)
	if changed {
		prev := len(g.rooms)
		appended := prev <= len(rooms) && SameRooms(g.rooms, rooms[:prev])
		if !appended {
			prev = 0
			g.index = nil
			g.align = util.MultiError{}
			g.rows.Invalidate(0)
			g.blocks = make(map[string]cachedBlock)
		}
		g.rooms = rooms
		for _, room := range rooms[prev:] {
			g.indexRoom(room)
		}
		g.rows.SetCount(len(rooms))
		slog.Debug("grid rooms updated", "rooms", len(rooms), "appended", appended)
	}
	g.updateBounds()
	g.mount()
	return changed
}

func (g *Grid) indexRoom(room model.RoomCategory) {
	idx := roomIndex{inv: room.InventoryByDate()}
	for _, plan := range room.RatePlans {
		idx.rates = append(idx.rates, plan.RatesByDate())
	}
	g.index = append(g.index, idx)

	if g.axis == nil {
		return
	}
	days := make([]time.Time, len(g.axis.Days))
	for i, d := range g.axis.Days {
		days[i] = d.Date
	}
	for _, p := range model.CheckAlignment(days, room) {
		slog.Warn("calendar misaligned", "room", room.ID, "problem", p)
		g.align.Add(errors.New(p))
	}
}

// mount registers panes for rooms inside the vertical window and
// unregisters the rest.
func (g *Grid) mount() {
	rng := g.rowRange()
	want := make(map[scroll.PaneID]bool)
	for i, room := range g.rooms {
		if rng.Contains(i) {
			want[RoomPane(room.ID)] = true
		}
	}
	for id := range g.mounted {
		if !want[id] {
			g.unregister(id)
			delete(g.mounted, id)
		}
	}
	for _, room := range g.rooms {
		id := RoomPane(room.ID)
		if want[id] && !g.mounted[id] {
			g.register(id, scroll.Both)
			g.mounted[id] = true
		}
	}
}

func (g *Grid) rowRange() virtual.Range {
	if g.height == 0 {
		return virtual.EmptyRange
	}
	return g.rows.VisibleRange(g.sync.Position().Top, g.height)
}

// ─── Scrolling ────────────────────────────────────────────────────────────────

// Pane returns a registered pane.
func (g *Grid) Pane(id scroll.PaneID) (*Pane, bool) {
	p, ok := g.panes[id]
	return p, ok
}

// Panes returns the registered panes in registration order.
func (g *Grid) Panes() []*Pane {
	ids := g.sync.Panes()
	out := make([]*Pane, 0, len(ids))
	for _, id := range ids {
		if p, ok := g.panes[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ScrollPane is a native scroll of pane id: the pane moves at once and the
// synchronizer carries the offset to the other panes on the next frame.
func (g *Grid) ScrollPane(id scroll.PaneID, u scroll.Update) bool {
	p, ok := g.panes[id]
	if !ok {
		return false
	}
	if u.HasLeft && p.Axes&scroll.Horizontal != 0 {
		p.Left = min(max(u.Left, 0), g.cols.MaxOffset(g.width))
	}
	if u.HasTop && p.Axes&scroll.Vertical != 0 {
		p.Top = min(max(u.Top, 0), max(g.ContentHeight()-g.height, 0))
	}
	return g.sync.OnPaneScroll(id, u)
}

// ScrollBy scrolls pane id relative to its current offsets.
func (g *Grid) ScrollBy(id scroll.PaneID, dx, dy int) bool {
	p, ok := g.panes[id]
	if !ok {
		return false
	}
	u := scroll.Update{}
	if dx != 0 {
		u.Left, u.HasLeft = p.Left+dx, true
	}
	if dy != 0 {
		u.Top, u.HasTop = p.Top+dy, true
	}
	return g.ScrollPane(id, u)
}

// Gesture returns a drag translator feeding the synchronizer.
func (g *Grid) Gesture(gain float64) *gesture.Translator {
	return gesture.New(g.sync, gain)
}

// ─── Sentinel ─────────────────────────────────────────────────────────────────

func (g *Grid) sentinelShown() bool {
	if _, ok := g.ctrl.Query(); !ok {
		return false
	}
	return g.ctrl.State() != pagination.Exhausted
}

// SentinelVisible is the visibility sensor for the load-more row: true when
// the row after the last room lies within the vertical viewport.
func (g *Grid) SentinelVisible() bool {
	if !g.sentinelShown() || g.height == 0 {
		return false
	}
	at := g.rows.TotalExtent()
	top := g.sync.Position().Top
	return at < top+g.height && at+SentinelHeight > top
}

// Poll feeds the sensor to the controller and returns a ticket when a new
// page should be fetched.
func (g *Grid) Poll() *pagination.Ticket {
	return g.ctrl.OnSentinel(g.SentinelVisible())
}

// Retry re-issues the failed fetch.
func (g *Grid) Retry() (*pagination.Ticket, error) { return g.ctrl.Retry() }

// ─── Driving ──────────────────────────────────────────────────────────────────

// Start runs t's fetch in the background and posts its completion to the
// grid's loop.
func (g *Grid) Start(ctx context.Context, t *pagination.Ticket) {
	g.ctrl.Start(ctx, t, g.loop.Post)
}

// Settle runs the loop until the grid is quiescent: no fetch in flight,
// propagation flushed and the sentinel either hidden or exhausted. A fetch
// failure leaves the controller in its Error state and is not returned.
func (g *Grid) Settle(ctx context.Context) error {
	return g.drive(ctx, g.Poll)
}

// LoadAll fetches every remaining page regardless of the viewport.
func (g *Grid) LoadAll(ctx context.Context) error {
	return g.drive(ctx, func() *pagination.Ticket { return g.ctrl.OnSentinel(true) })
}

func (g *Grid) drive(ctx context.Context, next func() *pagination.Ticket) error {
	for {
		for g.ctrl.State() == pagination.Fetching {
			if err := g.loop.Wait(ctx); err != nil {
				return err
			}
			g.loop.RunDue(g.loop.Now())
		}
		g.sync.Flush()
		g.Refresh()

		t := next()
		if t == nil {
			return nil
		}
		g.Start(ctx, t)
	}
}

// ScrollTo moves the canonical position to (left, top) on behalf of source.
// A top beyond the loaded rooms pulls pages through the sentinel until it
// fits, the dataset is exhausted or a fetch fails.
func (g *Grid) ScrollTo(ctx context.Context, source scroll.PaneID, left, top int) error {
	for {
		g.sync.OnPaneScroll(source, scroll.To(left, top))
		g.sync.Flush()
		g.mount()
		if g.sync.Position().Top >= top || g.ctrl.State() != pagination.Idle {
			return nil
		}
		before := g.ctrl.RoomCount()
		if err := g.Settle(ctx); err != nil {
			return err
		}
		if g.ctrl.RoomCount() == before && g.ctrl.State() == pagination.Idle {
			return nil
		}
	}
}

// Load sets q, fetches until the viewport is filled and settles.
func (g *Grid) Load(ctx context.Context, q model.Query) error {
	t, err := g.SetQuery(q)
	if err != nil {
		return err
	}
	if t != nil {
		g.Start(ctx, t)
	}
	return g.Settle(ctx)
}
