package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/source"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func date(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

func testQuery() model.Query {
	return model.Query{PropertyID: 3, Start: date(time.January, 1), End: date(time.March, 31)}
}

func makeRooms(n int) []model.RoomCategory {
	q := testQuery()
	rooms := make([]model.RoomCategory, n)
	for i := range rooms {
		room := model.RoomCategory{ID: fmt.Sprintf("r%02d", i), Name: fmt.Sprintf("Room %d", i)}
		plan := model.RatePlan{ID: 1, Name: "BAR"}
		for d := q.Start; !d.After(q.End); d = d.AddDate(0, 0, 1) {
			room.Inventory = append(room.Inventory, model.InventoryDay{Date: d, Available: 4, Status: d.Day() != 2})
			plan.Calendar = append(plan.Calendar, model.RateDay{Date: d, Rate: 150})
		}
		room.RatePlans = []model.RatePlan{plan}
		rooms[i] = room
	}
	return rooms
}

// flaky fails its first n fetches.
type flaky struct {
	fails int
	inner pagination.Fetcher
}

func (f *flaky) FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("gateway timeout")
	}
	return f.inner.FetchPage(ctx, q, cursor)
}

// newModel builds a model over f with a 40x12 room area. Each room block is
// three lines tall.
func newModel(t *testing.T, f pagination.Fetcher) *Model {
	t.Helper()
	l := loop.New(time.Unix(0, 0))
	g := grid.New(pagination.New(f), l, grid.Options{CellWidth: 8, Overscan: 1})
	m, err := New(context.Background(), g, l, testQuery(), Options{CellWidth: 8, GestureGain: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Update(tea.WindowSizeMsg{Width: LabelWidth + 40, Height: chrome + 12})
	return m
}

// drain runs cmd and every command it produces, feeding messages back into
// m. Frame ticks are dropped; tests drive frames explicitly.
func drain(m *Model, cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case frameMsg:
		default:
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func frame(m *Model) {
	_, cmd := m.Update(frameMsg(m.loop.Now().Add(loop.FrameInterval)))
	drain(m, cmd)
}

func key(m *Model, k tea.KeyMsg) tea.Cmd {
	_, cmd := m.Update(k)
	return cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// ─── Loading ──────────────────────────────────────────────────────────────────

func TestInitLoadsUntilViewportFilled(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(10), 2))
	drain(m, m.Init())

	if got := len(m.grid.Rooms()); got != 4 {
		t.Fatalf("expected 4 rooms to fill 12 lines, got %d", got)
	}
	view := m.View()
	for _, want := range []string{"property 3", "Room 0", "Jan 2024", "Mon 01", "150.00", "4 rooms"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestScrollingToSentinelLoadsNextPage(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(10), 2))
	drain(m, m.Init())

	drain(m, key(m, tea.KeyMsg{Type: tea.KeyPgDown}))
	frame(m)

	if got := len(m.grid.Rooms()); got != 6 {
		t.Errorf("expected the sentinel to load a third page (6 rooms), got %d", got)
	}
}

func TestFailedFetchShowsRetryAndRecovers(t *testing.T) {
	m := newModel(t, &flaky{fails: 1, inner: source.NewFile("test", makeRooms(4), 2)})
	drain(m, m.Init())

	if m.grid.Controller().State() != pagination.Error {
		t.Fatalf("expected Error state, got %s", m.grid.Controller().State())
	}
	if !strings.Contains(m.View(), "press r to retry") {
		t.Error("view should offer a retry")
	}

	drain(m, key(m, runes("r")))
	if len(m.grid.Rooms()) == 0 {
		t.Fatal("retry should load rooms")
	}
	if strings.Contains(m.View(), "press r to retry") {
		t.Error("retry indicator should clear after success")
	}
}

func TestRetryWithoutFailureShowsNotice(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(1), 2))
	drain(m, m.Init())

	if cmd := key(m, runes("r")); cmd != nil {
		t.Error("retry after exhaustion should not fetch")
	}
	if !strings.Contains(m.View(), pagination.ErrExhausted.Error()) {
		t.Error("expected an exhausted notice in the status line")
	}
}

// ─── Scrolling ────────────────────────────────────────────────────────────────

func TestArrowKeysMoveFocusedPaneThenSync(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(4), 4))
	drain(m, m.Init())

	key(m, tea.KeyMsg{Type: tea.KeyRight})
	if p, _ := m.grid.Pane(grid.PaneDates); p.Left != 8 {
		t.Fatalf("focused pane should move at once, got %d", p.Left)
	}
	if p, _ := m.grid.Pane(grid.RoomPane("r00")); p.Left != 0 {
		t.Fatalf("other panes should wait for the frame, got %d", p.Left)
	}

	frame(m)
	for _, p := range m.grid.Panes() {
		if p.Left != 8 {
			t.Errorf("pane %s: expected left 8, got %d", p.ID, p.Left)
		}
	}
}

func TestMonthRowSpansFollowMonthBoundaries(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(2), 2))
	drain(m, m.Init())

	// Jan 29 first: columns 27..33 with overscan, Jan 28 through Feb 3.
	m.grid.ScrollPane(grid.PaneDates, scroll.ToLeft(28*8))
	frame(m)

	row := ansi.ReplaceAllString(m.monthRow(m.grid.Window()), "")
	jan, feb := strings.Index(row, "Jan 2024"), strings.Index(row, "Feb 2024")
	if jan != LabelWidth || feb < 0 {
		t.Fatalf("expected both month titles, got %q", row)
	}
	if feb-jan != 4*8 {
		t.Errorf("Feb should start after 4 January columns, got offset %d", feb-jan)
	}
	if got := len(row) - LabelWidth; got != 7*8 {
		t.Errorf("month row should cover the 7 date columns, got %d cells", got)
	}
}

func TestVerticalKeysFromHeaderScrollRooms(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(10), 10))
	drain(m, m.Init())

	key(m, runes("j"))
	key(m, runes("j"))
	frame(m)
	if top := m.grid.Synchronizer().Position().Top; top != 2 {
		t.Errorf("expected top 2, got %d", top)
	}
	if p, _ := m.grid.Pane(grid.PaneDates); p.Top != 0 {
		t.Error("date header must not scroll vertically")
	}
}

func TestTabCyclesFocus(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(2), 2))
	drain(m, m.Init())

	start := m.Focus()
	n := len(m.grid.Panes())
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		key(m, tea.KeyMsg{Type: tea.KeyTab})
		seen[string(m.Focus())] = true
	}
	if len(seen) != n {
		t.Errorf("expected to visit %d panes, visited %v", n, seen)
	}
	if m.Focus() != start {
		t.Errorf("expected focus to wrap to %s, got %s", start, m.Focus())
	}
	key(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.Focus() == start {
		t.Error("shift+tab should move focus backwards")
	}
}

func TestMouseDragIsTouchGesture(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(4), 4))
	drain(m, m.Init())

	m.Update(tea.MouseMsg{X: 60, Y: 8, Type: tea.MouseLeft})
	m.Update(tea.MouseMsg{X: 50, Y: 8, Type: tea.MouseMotion})
	m.Update(tea.MouseMsg{X: 40, Y: 8, Type: tea.MouseMotion})
	m.Update(tea.MouseMsg{X: 40, Y: 8, Type: tea.MouseRelease})
	frame(m)

	for _, p := range m.grid.Panes() {
		if p.Left != 20 {
			t.Errorf("pane %s: expected left 20 after a 20-cell drag, got %d", p.ID, p.Left)
		}
	}
}

func TestQuit(t *testing.T) {
	m := newModel(t, source.NewFile("test", makeRooms(1), 1))
	cmd := key(m, runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}
