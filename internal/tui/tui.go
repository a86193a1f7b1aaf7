// Package tui is the interactive terminal front end of the calendar grid.
//
// The bubbletea program is the control thread: every frame tick runs the
// loop's due timers (scroll propagation), fetches run as commands and their
// results come back as messages that are applied with Controller.Complete.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/derickschaefer/ratecal/internal/gesture"
	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/render"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/util"
)

// LabelWidth is the width of the room/plan label column.
const LabelWidth = 22

// chrome is the number of lines outside the room area: title, month row,
// date row and status line.
const chrome = 4

// Options configures the program.
type Options struct {
	CellWidth     int // horizontal key step; match the grid's cell width
	FrameInterval time.Duration
	GestureGain   float64
}

// ─── Messages ─────────────────────────────────────────────────────────────────

type frameMsg time.Time

type pageMsg struct {
	ticket *pagination.Ticket
	page   *model.Page
	err    error
}

// ─── Styles ───────────────────────────────────────────────────────────────────

type styles struct {
	title   lipgloss.Style
	month   lipgloss.Style
	date    lipgloss.Style
	weekend lipgloss.Style
	label   lipgloss.Style
	focus   lipgloss.Style
	plan    lipgloss.Style
	closed  lipgloss.Style
	missing lipgloss.Style
	status  lipgloss.Style
	errLine lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		month:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		date:    lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		weekend: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		label:   lipgloss.NewStyle().Bold(true),
		focus:   lipgloss.NewStyle().Bold(true).Reverse(true),
		plan:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		closed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		missing: lipgloss.NewStyle().Faint(true),
		status:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errLine: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// ─── Model ────────────────────────────────────────────────────────────────────

// Model is the bubbletea model wrapping a grid.
type Model struct {
	ctx   context.Context
	grid  *grid.Grid
	loop  *loop.Loop
	query model.Query
	opts  Options

	pending  *pagination.Ticket
	focus    scroll.PaneID
	drag     *gesture.Translator
	styles   styles
	width    int
	height   int
	notice   string
	quitting bool
}

// New sets q on g and returns a model ready to run. The first page is
// requested by Init.
func New(ctx context.Context, g *grid.Grid, l *loop.Loop, q model.Query, opts Options) (*Model, error) {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = loop.FrameInterval
	}
	if opts.CellWidth <= 0 {
		opts.CellWidth = grid.DefaultCellWidth
	}
	t, err := g.SetQuery(q)
	if err != nil {
		return nil, err
	}
	return &Model{
		ctx:     ctx,
		grid:    g,
		loop:    l,
		query:   q,
		opts:    opts,
		pending: t,
		focus:   grid.PaneDates,
		drag:    g.Gesture(opts.GestureGain),
		styles:  defaultStyles(),
	}, nil
}

// Run starts the program on the alternate screen with mouse motion events.
func Run(ctx context.Context, g *grid.Grid, l *loop.Loop, q model.Query, opts Options) error {
	m, err := New(ctx, g, l, q, opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	t := m.pending
	m.pending = nil
	return tea.Batch(m.fetch(t), m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// fetch runs t off the control thread and reports back with a pageMsg.
func (m *Model) fetch(t *pagination.Ticket) tea.Cmd {
	if t == nil {
		return nil
	}
	ctrl, ctx := m.grid.Controller(), m.ctx
	return func() tea.Msg {
		page, err := ctrl.Fetch(ctx, t)
		return pageMsg{ticket: t, page: page, err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.grid.Resize(max(msg.Width-LabelWidth, 0), max(msg.Height-chrome, 0))
		m.grid.Refresh()
		return m, m.fetch(m.grid.Poll())

	case frameMsg:
		m.loop.RunDue(time.Time(msg))
		m.grid.Refresh()
		m.ensureFocus()
		return m, tea.Batch(m.fetch(m.grid.Poll()), m.tick())

	case pageMsg:
		if m.grid.Controller().Complete(msg.ticket, msg.page, msg.err) == pagination.Discarded {
			return m, nil
		}
		m.grid.Refresh()
		m.ensureFocus()
		return m, m.fetch(m.grid.Poll())

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	cellW := m.opts.CellWidth
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.cycleFocus(1)
	case "shift+tab":
		m.cycleFocus(-1)
	case "left", "h":
		m.grid.ScrollBy(m.focus, -cellW, 0)
	case "right", "l":
		m.grid.ScrollBy(m.focus, cellW, 0)
	case "up", "k":
		m.grid.ScrollBy(m.verticalPane(), 0, -1)
	case "down", "j":
		m.grid.ScrollBy(m.verticalPane(), 0, 1)
	case "pgup":
		m.grid.ScrollBy(m.verticalPane(), 0, -m.roomLines())
	case "pgdown", " ":
		m.grid.ScrollBy(m.verticalPane(), 0, m.roomLines())
	case "home", "g":
		m.grid.ScrollPane(m.focus, scroll.ToLeft(0))
	case "end", "G":
		m.grid.ScrollPane(m.focus, scroll.ToLeft(m.grid.ContentWidth()))
	case "r":
		t, err := m.grid.Retry()
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.fetch(t)
	}
	return m, nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	p := gesture.Point{X: float64(msg.X), Y: float64(msg.Y)}
	switch msg.Type {
	case tea.MouseLeft:
		m.drag.Begin(p)
	case tea.MouseMotion:
		m.drag.Move(p)
	case tea.MouseRelease:
		m.drag.End()
	case tea.MouseWheelUp:
		m.grid.ScrollBy(m.verticalPane(), 0, -1)
	case tea.MouseWheelDown:
		m.grid.ScrollBy(m.verticalPane(), 0, 1)
	}
}

// ─── Focus ────────────────────────────────────────────────────────────────────

// Focus returns the pane keyboard scrolls are applied to.
func (m *Model) Focus() scroll.PaneID { return m.focus }

func (m *Model) cycleFocus(dir int) {
	panes := m.grid.Panes()
	if len(panes) == 0 {
		return
	}
	at := 0
	for i, p := range panes {
		if p.ID == m.focus {
			at = i
			break
		}
	}
	at = (at + dir + len(panes)) % len(panes)
	m.focus = panes[at].ID
}

// ensureFocus moves focus back to the date header when the focused room pane
// has been unmounted.
func (m *Model) ensureFocus() {
	if _, ok := m.grid.Pane(m.focus); !ok {
		m.focus = grid.PaneDates
	}
}

// verticalPane is the focused pane if it scrolls vertically, otherwise the
// first mounted room pane.
func (m *Model) verticalPane() scroll.PaneID {
	if p, ok := m.grid.Pane(m.focus); ok && p.Axes&scroll.Vertical != 0 {
		return m.focus
	}
	for _, p := range m.grid.Panes() {
		if p.Axes&scroll.Vertical != 0 {
			return p.ID
		}
	}
	return m.focus
}

func (m *Model) roomLines() int { return max(m.height-chrome, 1) }

// ─── View ─────────────────────────────────────────────────────────────────────

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	win := m.grid.Window()
	s := m.styles
	var b strings.Builder

	b.WriteString(s.title.Render(fmt.Sprintf("ratecal • property %d • %s → %s • %d rooms",
		m.query.PropertyID, util.FormatDate(m.query.Start), util.FormatDate(m.query.End), win.TotalRooms)))
	b.WriteByte('\n')
	b.WriteString(m.monthRow(win))
	b.WriteByte('\n')
	b.WriteString(m.dateRow(win))
	b.WriteByte('\n')

	lines := make([]string, max(win.Height, 0))
	top := win.Position.Top
	for _, blk := range win.Rooms {
		for k, row := range blk.Rows {
			if y := blk.Offset + k - top; y >= 0 && y < len(lines) {
				lines[y] = m.roomRow(blk, row, win.CellWidth)
			}
		}
	}
	if win.Sentinel.Shown {
		if y := win.Sentinel.Offset - top; y >= 0 && y < len(lines) {
			lines[y] = m.sentinelRow(win.Sentinel)
		}
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteByte('\n')
	b.WriteString(m.statusLine(win))
	return b.String()
}

func pad(text string, width int) string {
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(util.Truncate(text, width))
}

// monthRow draws each month header span clipped to the columns the date
// row shows.
func (m *Model) monthRow(win grid.Window) string {
	var b strings.Builder
	b.WriteString(pad("", LabelWidth))
	if len(win.Days) == 0 {
		return b.String()
	}
	start := win.Days[0].Offset
	end := win.Days[len(win.Days)-1].Offset + win.CellWidth
	for _, mc := range win.Months {
		lo, hi := max(mc.Offset, start), min(mc.Offset+mc.Width, end)
		if hi <= lo {
			continue
		}
		b.WriteString(m.styles.month.Render(pad(mc.Title, hi-lo)))
	}
	return b.String()
}

func (m *Model) dateRow(win grid.Window) string {
	var b strings.Builder
	label := "dates"
	st := m.styles.label
	if m.focus == grid.PaneDates || m.focus == grid.PaneMonths {
		st = m.styles.focus
	}
	b.WriteString(st.Render(pad(label, LabelWidth)))
	for _, d := range win.Days {
		ds := m.styles.date
		if wd := d.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			ds = m.styles.weekend
		}
		b.WriteString(ds.Render(pad(d.Weekday+" "+d.DayOfMonth, win.CellWidth)))
	}
	return b.String()
}

func (m *Model) roomRow(blk grid.RoomBlock, row grid.Row, cellWidth int) string {
	var b strings.Builder
	if row.Kind == grid.RowInventory {
		st := m.styles.label
		if m.focus == grid.RoomPane(blk.ID) {
			st = m.styles.focus
		}
		b.WriteString(st.Render(pad(row.Label, LabelWidth)))
	} else {
		b.WriteString(m.styles.plan.Render(pad("  "+row.Label, LabelWidth)))
	}
	for _, c := range row.Cells {
		text := pad(render.CellText(row.Kind, c), cellWidth)
		switch {
		case !c.Present:
			text = m.styles.missing.Render(text)
		case row.Kind == grid.RowInventory && !c.Open:
			text = m.styles.closed.Render(text)
		}
		b.WriteString(text)
	}
	return b.String()
}

func (m *Model) sentinelRow(s grid.Sentinel) string {
	switch {
	case s.Error != "":
		return m.styles.errLine.Render("✗ " + s.Error + " (press r to retry)")
	case s.State == pagination.Fetching.String():
		return m.styles.status.Render("Loading more rooms…")
	default:
		return m.styles.status.Render("Scroll to load more")
	}
}

func (m *Model) statusLine(win grid.Window) string {
	state := win.Sentinel.State
	if !win.Sentinel.Shown && win.TotalRooms > 0 {
		state = "all rooms loaded"
	}
	parts := []string{
		fmt.Sprintf("focus %s", m.focus),
		fmt.Sprintf("x %d y %d", win.Position.Left, win.Position.Top),
		fmt.Sprintf("%d pages", win.Sentinel.Loaded),
		state,
	}
	if n := len(m.grid.Warnings()); n > 0 {
		parts = append(parts, fmt.Sprintf("⚠ %d alignment warnings", n))
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	parts = append(parts, "←↓↑→/hjkl scroll • tab focus • r retry • q quit")
	return m.styles.status.Render(strings.Join(parts, " • "))
}
