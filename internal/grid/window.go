package grid

import (
	"time"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/util"
	"github.com/derickschaefer/ratecal/internal/virtual"
)

// Window is the materialized visible part of the grid. Everything outside
// it is absent.
type Window struct {
	Query      model.Query     `json:"query"`
	Position   scroll.Position `json:"position"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	CellWidth  int             `json:"cell_width"`
	Cols       virtual.Range   `json:"cols"`
	Rows       virtual.Range   `json:"rows"`
	TotalDays  int             `json:"total_days"`
	TotalRooms int             `json:"total_rooms"`
	Months     []MonthCell     `json:"months"`
	Days       []DayColumn     `json:"days"`
	Rooms      []RoomBlock     `json:"rooms"`
	Sentinel   Sentinel        `json:"sentinel"`
}

// MonthCell is one visible month header span.
type MonthCell struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Title  string `json:"title"`
	Days   int    `json:"days"`
	First  int    `json:"first"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
}

// DayColumn is one visible date header column.
type DayColumn struct {
	Index      int       `json:"index"`
	Date       time.Time `json:"date"`
	Month      string    `json:"month"`
	Weekday    string    `json:"weekday"`
	DayOfMonth string    `json:"day_of_month"`
	Offset     int       `json:"offset"`
}

// RowKind distinguishes the rows of a room block.
type RowKind string

const (
	RowInventory RowKind = "inventory"
	RowRatePlan  RowKind = "rate_plan"
)

// Cell is one night of one row. Present is false when the calendar has no
// entry for the date.
type Cell struct {
	Day       int       `json:"day"`
	Date      time.Time `json:"date"`
	Present   bool      `json:"present"`
	Available int       `json:"available,omitempty"`
	Booked    int       `json:"booked,omitempty"`
	Open      bool      `json:"open,omitempty"`
	Rate      float64   `json:"rate,omitempty"`
	MinStay   int       `json:"min_stay,omitempty"`
	Deadline  int       `json:"deadline,omitempty"`
}

// Row is one line of a room block.
type Row struct {
	Kind   RowKind `json:"kind"`
	Label  string  `json:"label"`
	PlanID int     `json:"plan_id,omitempty"`
	Cells  []Cell  `json:"cells"`
}

// RoomBlock is the visible slice of one room pane.
type RoomBlock struct {
	Index     int           `json:"index"`
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Occupancy int           `json:"occupancy"`
	Offset    int           `json:"offset"`
	Height    int           `json:"height"`
	Left      int           `json:"left"`
	Cols      virtual.Range `json:"cols"`
	Rows      []Row         `json:"rows"`
}

// Sentinel describes the load-more row.
type Sentinel struct {
	Shown   bool   `json:"shown"`
	Visible bool   `json:"visible"`
	Offset  int    `json:"offset"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
	Loaded  int    `json:"loaded"`
	HasMore bool   `json:"has_more"`
}

// blockProps are the inputs of a room block. A cached block is reused while
// its props compare equal.
type blockProps struct {
	gen  uint64
	id   string
	cols virtual.Range
}

type cachedBlock struct {
	props blockProps
	rows  []Row
}

// sameBlock is the skip-recompute predicate for room blocks.
func sameBlock(a, b blockProps) bool { return a == b }

// BlockBuilds returns how many room blocks have been computed rather than
// reused.
func (g *Grid) BlockBuilds() int { return g.blockBuild }

// Window materializes the visible cells of every pane.
func (g *Grid) Window() Window {
	g.mount()

	q, _ := g.ctrl.Query()
	d := g.ctrl.Dataset()
	pos := g.sync.Position()
	dates, hasDates := g.panes[PaneDates]
	left := 0
	if hasDates {
		left = dates.Left
	}
	cols, rows := g.body.Visible(left, pos.Top, g.width, g.height)

	w := Window{
		Query:      q,
		Position:   pos,
		Width:      g.width,
		Height:     g.height,
		CellWidth:  g.opts.CellWidth,
		Cols:       virtual.EmptyRange,
		Rows:       virtual.EmptyRange,
		TotalRooms: len(g.rooms),
		Sentinel: Sentinel{
			Shown:   g.sentinelShown(),
			Visible: g.SentinelVisible(),
			Offset:  g.rows.TotalExtent(),
			State:   g.ctrl.State().String(),
			Loaded:  len(d.Pages),
			HasMore: d.HasMore,
		},
	}
	if err := g.ctrl.Err(); err != nil {
		w.Sentinel.Error = err.Error()
	}
	if g.height > 0 {
		w.Rows = rows
	}
	if g.axis == nil {
		return w
	}
	w.TotalDays = g.axis.Len()

	if p, ok := g.panes[PaneMonths]; ok && g.width > 0 {
		rng := g.months.VisibleRange(p.Left, g.width)
		for i := rng.Start; i <= rng.End; i++ {
			m := g.axis.Months[i]
			w.Months = append(w.Months, MonthCell{
				Index:  i,
				Label:  m.Label,
				Title:  m.Title(),
				Days:   m.Days,
				First:  m.First,
				Offset: g.months.OffsetOf(i),
				Width:  g.months.SizeOf(i),
			})
		}
	}

	if hasDates && g.width > 0 {
		w.Cols = cols
		for i := w.Cols.Start; i <= w.Cols.End; i++ {
			day := g.axis.Days[i]
			w.Days = append(w.Days, DayColumn{
				Index:      i,
				Date:       day.Date,
				Month:      day.Month,
				Weekday:    day.Weekday(),
				DayOfMonth: day.DayOfMonth(),
				Offset:     g.cols.OffsetOf(i),
			})
		}
	}

	if !w.Rows.Empty() {
		for i := w.Rows.Start; i <= w.Rows.End; i++ {
			w.Rooms = append(w.Rooms, g.block(i))
		}
	}
	return w
}

// block materializes room i within its own pane's column window.
func (g *Grid) block(i int) RoomBlock {
	room := g.rooms[i]
	left := 0
	if p, ok := g.panes[RoomPane(room.ID)]; ok {
		left = p.Left
	}
	cols := virtual.EmptyRange
	if g.width > 0 {
		cols = g.cols.VisibleRange(left, g.width)
	}

	b := RoomBlock{
		Index:     i,
		ID:        room.ID,
		Name:      room.Name,
		Occupancy: room.Occupancy,
		Offset:    g.rows.OffsetOf(i),
		Height:    g.rows.SizeOf(i),
		Left:      left,
		Cols:      cols,
	}

	props := blockProps{gen: g.gen, id: room.ID, cols: cols}
	if cached, ok := g.blocks[room.ID]; ok && sameBlock(cached.props, props) {
		b.Rows = cached.rows
		return b
	}
	b.Rows = g.buildRows(i, cols)
	g.blocks[room.ID] = cachedBlock{props: props, rows: b.Rows}
	g.blockBuild++
	return b
}

func (g *Grid) buildRows(i int, cols virtual.Range) []Row {
	room, idx := g.rooms[i], g.index[i]

	inv := Row{Kind: RowInventory, Label: room.Name}
	for c := cols.Start; c <= cols.End; c++ {
		date := g.axis.Days[c].Date
		cell := Cell{Day: c, Date: date}
		if d, ok := idx.inv[util.FormatDate(date)]; ok {
			cell.Present = true
			cell.Available = d.Available
			cell.Booked = d.Booked
			cell.Open = d.Status
		}
		inv.Cells = append(inv.Cells, cell)
	}
	rows := []Row{inv}

	for p, plan := range room.RatePlans {
		row := Row{Kind: RowRatePlan, Label: plan.Name, PlanID: plan.ID}
		for c := cols.Start; c <= cols.End; c++ {
			date := g.axis.Days[c].Date
			cell := Cell{Day: c, Date: date}
			if d, ok := idx.rates[p][util.FormatDate(date)]; ok {
				cell.Present = true
				cell.Rate = d.Rate
				cell.MinStay = d.MinLengthOfStay
				cell.Deadline = d.ReservationDeadline
			}
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}
	return rows
}
