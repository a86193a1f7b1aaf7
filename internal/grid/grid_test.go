package grid_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/derickschaefer/ratecal/internal/gesture"
	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/source"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func date(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

// q90 spans 91 nights: Jan 1 through Mar 31, 2024.
func q90() model.Query {
	return model.Query{PropertyID: 1, Start: date(time.January, 1), End: date(time.March, 31)}
}

// makeRooms builds n rooms with one rate plan and a full calendar for
// [start, end].
func makeRooms(n int, start, end time.Time) []model.RoomCategory {
	rooms := make([]model.RoomCategory, n)
	for i := range rooms {
		room := model.RoomCategory{ID: fmt.Sprintf("r%02d", i), Name: fmt.Sprintf("Room %d", i), Occupancy: 2}
		plan := model.RatePlan{ID: 1, Name: "BAR"}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			room.Inventory = append(room.Inventory, model.InventoryDay{Date: d, Available: 5, Booked: i % 5, Status: true})
			plan.Calendar = append(plan.Calendar, model.RateDay{Date: d, Rate: 100 + float64(d.Day()), MinLengthOfStay: 1})
		}
		room.RatePlans = []model.RatePlan{plan}
		rooms[i] = room
	}
	return rooms
}

type harness struct {
	loop *loop.Loop
	grid *grid.Grid
}

// newHarness serves rooms through an offline source in pages of pageSize.
// Each room block is 3 lines tall (inventory, one rate plan, separator).
func newHarness(t *testing.T, rooms []model.RoomCategory, pageSize int) *harness {
	t.Helper()
	l := loop.New(time.Unix(0, 0))
	ctrl := pagination.New(source.NewFile("test", rooms, pageSize))
	g := grid.New(ctrl, l, grid.Options{CellWidth: 8, Overscan: 2, FrameInterval: loop.FrameInterval})
	return &harness{loop: l, grid: g}
}

func (h *harness) load(t *testing.T, q model.Query, width, height int) {
	t.Helper()
	h.grid.Resize(width, height)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.grid.Load(ctx, q); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func (h *harness) frame() { h.loop.Advance(loop.FrameInterval) }

// ─── Synchronization ──────────────────────────────────────────────────────────

func TestHorizontalScrollReachesEveryPane(t *testing.T) {
	h := newHarness(t, makeRooms(6, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)

	source := grid.RoomPane("r00")
	h.grid.ScrollPane(source, scroll.ToLeft(300))
	h.grid.ScrollPane(source, scroll.ToLeft(500))

	if p, _ := h.grid.Pane(grid.PaneDates); p.Left != 0 {
		t.Fatalf("propagation must wait for the frame, dates pane already at %d", p.Left)
	}
	h.frame()

	sync := h.grid.Synchronizer()
	if got := sync.Propagations(scroll.Horizontal); got != 1 {
		t.Errorf("expected one coalesced propagation, got %d", got)
	}
	for _, p := range h.grid.Panes() {
		if p.Left != 500 {
			t.Errorf("pane %s: expected left 500, got %d", p.ID, p.Left)
		}
	}
	for _, id := range []scroll.PaneID{grid.PaneMonths, grid.PaneDates} {
		if p, _ := h.grid.Pane(id); p.Top != 0 {
			t.Errorf("header %s moved vertically to %d", id, p.Top)
		}
	}
}

func TestVerticalScrollSkipsHeaders(t *testing.T) {
	h := newHarness(t, makeRooms(10, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 9)

	applied := map[scroll.PaneID]int{}
	for _, p := range h.grid.Panes() {
		applied[p.ID] = p.Applied
	}
	h.grid.ScrollPane(grid.RoomPane("r01"), scroll.ToTop(4))
	h.frame()

	for _, p := range h.grid.Panes() {
		switch p.ID {
		case grid.PaneMonths, grid.PaneDates:
			if p.Top != 0 || p.Applied != applied[p.ID] {
				t.Errorf("header %s driven vertically: top=%d applied=%d", p.ID, p.Top, p.Applied-applied[p.ID])
			}
		default:
			if p.Top != 4 {
				t.Errorf("room pane %s: expected top 4, got %d", p.ID, p.Top)
			}
		}
	}
}

func TestHeaderReportsCannotScrollVertically(t *testing.T) {
	h := newHarness(t, makeRooms(10, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 9)

	h.grid.ScrollPane(grid.PaneDates, scroll.To(80, 7))
	h.frame()
	if pos := h.grid.Synchronizer().Position(); pos.Left != 80 || pos.Top != 0 {
		t.Errorf("expected canonical (80, 0), got %+v", pos)
	}
}

func TestGestureDragScrollsAllPanes(t *testing.T) {
	h := newHarness(t, makeRooms(4, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)

	tr := h.grid.Gesture(gesture.DefaultGain)
	tr.Begin(gesture.Point{X: 100, Y: 50})
	tr.Move(gesture.Point{X: 95, Y: 50})
	tr.Move(gesture.Point{X: 90, Y: 50})
	tr.End()
	h.frame()

	for _, p := range h.grid.Panes() {
		if p.Left != 20 {
			t.Errorf("pane %s: expected left 20 after a 10-point drag, got %d", p.ID, p.Left)
		}
	}
}

func TestOffsetsClampedToContent(t *testing.T) {
	h := newHarness(t, makeRooms(2, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)

	h.grid.ScrollPane(grid.PaneDates, scroll.ToLeft(1_000_000))
	h.frame()
	want := h.grid.ContentWidth() - 40
	if pos := h.grid.Synchronizer().Position(); pos.Left != want {
		t.Errorf("expected left clamped to %d, got %d", want, pos.Left)
	}
}

// ─── Pagination ───────────────────────────────────────────────────────────────

func TestSentinelLoadsNextPageWhenScrolledIntoView(t *testing.T) {
	h := newHarness(t, makeRooms(25, q90().Start, q90().End), 5)
	h.load(t, q90(), 40, 10)

	ctrl := h.grid.Controller()
	if n := len(ctrl.Dataset().Pages); n != 1 {
		t.Fatalf("first viewport should need one page, got %d", n)
	}
	if h.grid.SentinelVisible() {
		t.Fatal("sentinel below the fold should not be visible")
	}

	h.grid.ScrollPane(grid.RoomPane("r00"), scroll.ToTop(1_000))
	h.frame()
	if !h.grid.SentinelVisible() {
		t.Fatalf("sentinel should be visible at the bottom (top=%d content=%d)",
			h.grid.Synchronizer().Position().Top, h.grid.ContentHeight())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.grid.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if n := len(ctrl.Dataset().Pages); n != 2 {
		t.Errorf("expected exactly one more page, got %d pages", n)
	}
	if len(h.grid.Rooms()) != 10 {
		t.Errorf("expected 10 rooms laid out, got %d", len(h.grid.Rooms()))
	}
}

func TestScrollToPastLoadedRoomsFetchesUntilReached(t *testing.T) {
	h := newHarness(t, makeRooms(30, q90().Start, q90().End), 2)
	h.load(t, q90(), 40, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.grid.ScrollTo(ctx, "cli", 0, 40); err != nil {
		t.Fatalf("ScrollTo: %v", err)
	}
	if top := h.grid.Synchronizer().Position().Top; top != 40 {
		t.Fatalf("expected top 40, got %d (content=%d)", top, h.grid.ContentHeight())
	}
	if st := h.grid.Controller().State(); st != pagination.Idle {
		t.Errorf("expected more pages to remain, got %s", st)
	}
	if _, ok := h.grid.Pane(grid.RoomPane("r13")); !ok {
		t.Error("room at line 40 should be mounted")
	}
	w := h.grid.Window()
	if len(w.Rooms) == 0 || w.Rooms[0].Index > 13 {
		t.Errorf("window should start at or before room 13: %+v", w.Rows)
	}
}

func TestScrollToStopsWhenExhausted(t *testing.T) {
	h := newHarness(t, makeRooms(5, q90().Start, q90().End), 2)
	h.load(t, q90(), 40, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.grid.ScrollTo(ctx, "cli", 0, 1_000); err != nil {
		t.Fatalf("ScrollTo: %v", err)
	}
	if st := h.grid.Controller().State(); st != pagination.Exhausted {
		t.Fatalf("expected exhausted, got %s", st)
	}
	if top := h.grid.Synchronizer().Position().Top; top != 5*3-10 {
		t.Errorf("expected top clamped to %d, got %d", 5*3-10, top)
	}
}

func TestLoadAllExhaustsAndHidesSentinel(t *testing.T) {
	h := newHarness(t, makeRooms(25, q90().Start, q90().End), 5)
	h.load(t, q90(), 40, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.grid.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if st := h.grid.Controller().State(); st != pagination.Exhausted {
		t.Fatalf("expected exhausted, got %s", st)
	}
	if h.grid.ContentHeight() != 25*3 {
		t.Errorf("content height: expected 75, got %d", h.grid.ContentHeight())
	}
	w := h.grid.Window()
	if w.Sentinel.Shown || w.Sentinel.Visible {
		t.Errorf("exhausted grid must not show the sentinel: %+v", w.Sentinel)
	}
}

func TestInvalidRangeLeavesGridUntouched(t *testing.T) {
	h := newHarness(t, makeRooms(3, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)
	before := len(h.grid.Rooms())

	bad := q90()
	bad.Start, bad.End = bad.End, bad.Start
	_, err := h.grid.SetQuery(bad)
	var rangeErr *timeaxis.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
	if len(h.grid.Rooms()) != before || h.grid.Axis().Len() != 91 {
		t.Error("invalid range mutated the grid")
	}
	if h.grid.Controller().State() != pagination.Exhausted {
		t.Errorf("controller state changed to %s", h.grid.Controller().State())
	}
}

func TestQueryChangeUnmountsRoomPanes(t *testing.T) {
	h := newHarness(t, makeRooms(3, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)
	if len(h.grid.Panes()) != 2+3 {
		t.Fatalf("expected 2 headers and 3 rooms, got %d panes", len(h.grid.Panes()))
	}

	narrow := q90()
	narrow.End = date(time.January, 31)
	tk, err := h.grid.SetQuery(narrow)
	if err != nil || tk == nil {
		t.Fatalf("SetQuery: %v %v", tk, err)
	}
	if len(h.grid.Panes()) != 2 || len(h.grid.Rooms()) != 0 {
		t.Errorf("room panes should be dropped on a query change, have %d panes", len(h.grid.Panes()))
	}
	if h.grid.Axis().Len() != 31 {
		t.Errorf("expected 31-day axis, got %d", h.grid.Axis().Len())
	}
}

// ─── Window ───────────────────────────────────────────────────────────────────

func TestWindowMaterializesOnlyVisibleCells(t *testing.T) {
	h := newHarness(t, makeRooms(20, q90().Start, q90().End), 20)
	h.load(t, q90(), 40, 9)

	w := h.grid.Window()
	// 40 cells / 8 per day = days 0..4, plus 2 overscan on the right.
	if w.Cols.Start != 0 || w.Cols.End != 6 || len(w.Days) != 7 {
		t.Errorf("expected columns [0, 6], got %+v with %d days", w.Cols, len(w.Days))
	}
	// 9 lines / 3 per room = rooms 0..2, plus 2 overscan below.
	if w.Rows.Start != 0 || w.Rows.End != 4 || len(w.Rooms) != 5 {
		t.Errorf("expected rows [0, 4], got %+v with %d rooms", w.Rows, len(w.Rooms))
	}
	for _, b := range w.Rooms {
		if len(b.Rows) != 2 {
			t.Fatalf("room %s: expected inventory + 1 rate plan, got %d rows", b.ID, len(b.Rows))
		}
		for _, row := range b.Rows {
			if len(row.Cells) != 7 {
				t.Errorf("room %s %s: expected 7 cells, got %d", b.ID, row.Kind, len(row.Cells))
			}
		}
	}
	if len(h.grid.Panes()) != 2+5 {
		t.Errorf("only visible rooms should be mounted, have %d panes", len(h.grid.Panes()))
	}
	if w.Months[0].Label != "Jan" || w.Months[0].Width != 31*8 {
		t.Errorf("month header: %+v", w.Months[0])
	}
	if w.Rooms[0].Rows[1].Cells[0].Rate != 101 {
		t.Errorf("rate for Jan 1: got %v", w.Rooms[0].Rows[1].Cells[0].Rate)
	}
}

func TestWindowRangesFollowScroll(t *testing.T) {
	h := newHarness(t, makeRooms(20, q90().Start, q90().End), 20)
	h.load(t, q90(), 40, 9)

	h.grid.ScrollPane(grid.RoomPane("r00"), scroll.To(80, 9))
	h.frame()
	w := h.grid.Window()
	// days 10..14 and rooms 3..5, each widened by 2 overscan.
	if w.Cols.Start != 8 || w.Cols.End != 16 {
		t.Errorf("expected columns [8, 16], got %+v", w.Cols)
	}
	if w.Rows.Start != 1 || w.Rows.End != 7 {
		t.Errorf("expected rows [1, 7], got %+v", w.Rows)
	}
	if w.Days[0].Index != 8 || w.Rooms[0].Index != 1 {
		t.Errorf("window should start at day 8 and room 1, got %d and %d", w.Days[0].Index, w.Rooms[0].Index)
	}
}

func TestMonthHeaderSpansFollowScroll(t *testing.T) {
	h := newHarness(t, makeRooms(1, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 6)

	h.grid.ScrollPane(grid.PaneDates, scroll.ToLeft(31*8+10))
	h.frame()
	w := h.grid.Window()
	if len(w.Months) == 0 || w.Months[0].Label != "Jan" {
		t.Fatalf("overscan should keep January: %+v", w.Months)
	}
	found := false
	for _, m := range w.Months {
		if m.Label == "Feb" && m.Offset == 31*8 && m.Width == 29*8 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected February at offset 248 width 232: %+v", w.Months)
	}
}

func TestRoomBlocksReusedUntilPropsChange(t *testing.T) {
	h := newHarness(t, makeRooms(3, q90().Start, q90().End), 10)
	h.load(t, q90(), 40, 12)

	h.grid.Window()
	built := h.grid.BlockBuilds()
	if built != 3 {
		t.Fatalf("expected 3 blocks built, got %d", built)
	}
	h.grid.Window()
	if h.grid.BlockBuilds() != built {
		t.Errorf("unchanged window rebuilt blocks: %d -> %d", built, h.grid.BlockBuilds())
	}

	h.grid.ScrollPane(grid.PaneDates, scroll.ToLeft(200))
	h.frame()
	h.grid.Window()
	if h.grid.BlockBuilds() != built+3 {
		t.Errorf("scrolled window should rebuild every block, got %d builds", h.grid.BlockBuilds())
	}
}

func TestSameRooms(t *testing.T) {
	a := []model.RoomCategory{{ID: "x"}, {ID: "y"}}
	b := []model.RoomCategory{{ID: "x", Name: "changed"}, {ID: "y"}}
	if !grid.SameRooms(a, b) {
		t.Error("same ids in the same order should compare equal")
	}
	if grid.SameRooms(a, []model.RoomCategory{{ID: "y"}, {ID: "x"}}) {
		t.Error("order matters")
	}
	if grid.SameRooms(a, a[:1]) {
		t.Error("length matters")
	}
	if !grid.SameRooms(nil, []model.RoomCategory{}) {
		t.Error("nil and empty are the same list")
	}
}

func TestMisalignedRoomRendersBlanks(t *testing.T) {
	rooms := makeRooms(1, q90().Start, q90().End)
	rooms[0].Inventory = rooms[0].Inventory[1:] // drop Jan 1
	h := newHarness(t, rooms, 10)
	h.load(t, q90(), 40, 6)

	if len(h.grid.Warnings()) != 1 {
		t.Fatalf("expected one alignment warning, got %v", h.grid.Warnings())
	}
	w := h.grid.Window()
	inv := w.Rooms[0].Rows[0]
	if inv.Cells[0].Present {
		t.Error("missing date should render as absent")
	}
	if !inv.Cells[1].Present || !inv.Cells[1].Date.Equal(date(time.January, 2)) {
		t.Errorf("later cells must not shift: %+v", inv.Cells[1])
	}
}
