// Package chart provides ASCII terminal charts for calendar data.
// Two renderers are available:
//
//   - Bar: horizontal bar chart, one bar per labeled value, such as booked
//     percentage per room category
//   - Plot: multi-line ASCII chart of a nightly series with labeled axes,
//     such as one rate plan's rate across the range
//
// Nights without data are NaN and render as gaps, not zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/ratecal/internal/analyze"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
	"github.com/derickschaefer/ratecal/internal/util"
)

// Point is one night of a series. Value is NaN when the night has no data.
type Point struct {
	Date  time.Time
	Value float64
}

// Item is one labeled bar.
type Item struct {
	Label string
	Value float64
}

// ─── Series ───────────────────────────────────────────────────────────────────

// RateSeries returns one point per night of axis for the given rate plan.
func RateSeries(axis *timeaxis.Axis, plan model.RatePlan) []Point {
	byDate := make(map[string]float64, len(plan.Calendar))
	for _, d := range plan.Calendar {
		byDate[util.FormatDate(d.Date)] = d.Rate
	}
	return series(axis, byDate)
}

// AvailabilitySeries returns available units per night of axis.
func AvailabilitySeries(axis *timeaxis.Axis, room model.RoomCategory) []Point {
	byDate := make(map[string]float64, len(room.Inventory))
	for _, d := range room.Inventory {
		byDate[util.FormatDate(d.Date)] = float64(d.Available)
	}
	return series(axis, byDate)
}

func series(axis *timeaxis.Axis, byDate map[string]float64) []Point {
	out := make([]Point, axis.Len())
	for i, day := range axis.Days {
		v, ok := byDate[util.FormatDate(day.Date)]
		if !ok {
			v = math.NaN()
		}
		out[i] = Point{Date: day.Date, Value: v}
	}
	return out
}

// OccupancyItems returns one bar per room: its booked percentage.
func OccupancyItems(r analyze.Report) []Item {
	items := make([]Item, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		label := room.Name
		if label == "" {
			label = room.RoomID
		}
		items = append(items, Item{Label: label, Value: room.BookedPct})
	}
	return items
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars caps the number of bars; the first MaxBars are kept.
	// If 0, no limit is applied.
	MaxBars int
	// Unit is appended to each value label, e.g. "%".
	Unit string
}

// Bar renders a horizontal bar chart of items to w, one bar per item.
//
// Output example:
//
//	Booked %
//	Deluxe King   62.5%  ████████████
//	Twin          80.0%  ████████████████
func Bar(w io.Writer, title string, items []Item, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	var valid []Item
	for _, it := range items {
		if !math.IsNaN(it.Value) {
			valid = append(valid, it)
		}
	}
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no values to render")
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[:opts.MaxBars]
	}

	// Bars grow from zero; negative values are not meaningful here.
	maxVal := 0.0
	labelWidth, valWidth := 0, 0
	for _, it := range valid {
		maxVal = math.Max(maxVal, it.Value)
		labelWidth = max(labelWidth, len([]rune(it.Label)))
		valWidth = max(valWidth, len(formatFloat(it.Value)+opts.Unit))
	}
	if maxVal == 0 {
		maxVal = 1
	}

	barAreaWidth := max(totalWidth-labelWidth-valWidth-4, 4)

	fmt.Fprintln(w, title)
	for _, it := range valid {
		barLen := int(math.Round(math.Max(it.Value, 0) / maxVal * float64(barAreaWidth)))
		barLen = min(max(barLen, 1), barAreaWidth)
		fmt.Fprintf(w, "%s  %*s  %s\n",
			padRight(it.Label, labelWidth),
			valWidth, formatFloat(it.Value)+opts.Unit,
			strings.Repeat("█", barLen),
		)
	}
	return nil
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body (not counting axis labels).
	// If 0, defaults to 12.
	Height int
}

// Plot renders a multi-line ASCII chart of points to w.
func Plot(w io.Writer, title string, points []Point, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}

	var validVals []float64
	for _, p := range points {
		if !math.IsNaN(p.Value) {
			validVals = append(validVals, p.Value)
		}
	}
	if len(validVals) < 2 {
		return fmt.Errorf("chart plot: need at least 2 nights with data (got %d)", len(validVals))
	}

	minVal, maxVal := validVals[0], validVals[0]
	for _, v := range validVals[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		yLabelWidth = max(yLabelWidth, len(formatFloat(t)))
	}

	plotWidth := max(width-yLabelWidth-2, 10)
	// Never stretch a short range wider than one column per night.
	plotWidth = min(plotWidth, len(points))

	cols := sampleCols(points, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title,
		util.FormatDate(points[0].Date), util.FormatDate(points[len(points)-1].Date))

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		axisCh := "┤"
		if label == "" {
			axisCh = " "
		}
		fmt.Fprintf(w, "%*s%s%s\n", yLabelWidth, label, axisCh, string(grid[row]))
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(points, plotWidth))
	return nil
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces points to exactly n columns. Each column holds the
// average of its bucket, or NaN if the bucket has no data.
func sampleCols(points []Point, n int) []float64 {
	total := len(points)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := min((col+1)*total/n-1, total-1)
		sum, count := 0.0, 0
		for i := lo; i <= hi; i++ {
			if !math.IsNaN(points[i].Value) {
				sum += points[i].Value
				count++
			}
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent values.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = -1 // gap
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		rowOf[col] = min(max(r, 0), height-1)
	}

	for col := range cols {
		r := rowOf[col]
		if r < 0 {
			continue
		}
		prev, next := -1, -1
		if col > 0 {
			prev = rowOf[col-1]
		}
		if col < len(cols)-1 {
			next = rowOf[col+1]
		}

		switch {
		case prev < 0 && next < 0:
			grid[r][col] = '·'
		case (prev < 0 || prev == r) && (next < 0 || next == r):
			grid[r][col] = '─'
		case next > r && (prev < 0 || prev <= r):
			grid[r][col] = '╭'
		case next >= 0 && next < r && (prev < 0 || prev >= r):
			grid[r][col] = '╰'
		case prev >= 0 && prev < r:
			grid[r][col] = '╮'
		case prev > r:
			grid[r][col] = '╯'
		default:
			grid[r][col] = '─'
		}

		if prev >= 0 && prev != r {
			lo, hi := min(r, prev), max(r, prev)
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}
	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns evenly spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := range ticks {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels places the first, middle and last dates along the axis.
func xAxisLabels(points []Point, plotWidth int) string {
	if len(points) == 0 {
		return ""
	}
	const layout = "Jan 02"
	start := points[0].Date.Format(layout)
	mid := points[len(points)/2].Date.Format(layout)
	end := points[len(points)-1].Date.Format(layout)

	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	writeAt(0, start)
	if plotWidth >= 3*len(layout)+2 {
		writeAt(plotWidth/2-len(mid)/2, mid)
	}
	if plotWidth >= 2*len(layout)+1 {
		writeAt(plotWidth-len(end), end)
	}
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a value for labels: no unnecessary trailing zeros,
// compact notation for large numbers.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e4:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
