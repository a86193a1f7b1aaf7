// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/ratecal/internal/analyze"
	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/pipeline"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
	"github.com/derickschaefer/ratecal/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Cell markers shared by every text format.
const (
	Missing = "—"
	Closed  = "x"
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// Output returns def, or a created file at path when path is non-empty.
// The returned close function must always be called.
func Output(def io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// RenderTo renders result to def, or to the file at path when path is set.
func RenderTo(def io.Writer, path string, result *model.Result, format string) error {
	w, closeFn, err := Output(def, path)
	if err != nil {
		return err
	}
	if err := Render(w, result, format); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch v := result.Data.(type) {
	case []model.RoomCategory:
		return pipeline.WriteJSONL(w, v)
	case *grid.Window:
		for _, b := range v.Rooms {
			if err := enc.Encode(b); err != nil {
				return err
			}
		}
		return nil
	case *analyze.Report:
		for _, r := range v.Rooms {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case *timeaxis.Axis:
		for _, d := range v.Days {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	return tw
}

func renderTable(w io.Writer, result *model.Result) error {
	if win, ok := result.Data.(*grid.Window); ok && win.TotalDays > 0 {
		fmt.Fprintln(w, monthLine(win))
	}
	header, rows, err := tabular(result, false)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return nil
	}
	tw := newTable(w, header)
	for _, row := range rows {
		tw.Append(row)
	}
	tw.Render()
	return nil
}

// monthLine names the months the visible columns fall in.
func monthLine(win *grid.Window) string {
	titles := make([]string, 0, len(win.Months))
	for _, m := range win.Months {
		titles = append(titles, m.Title)
	}
	if len(titles) == 0 {
		return fmt.Sprintf("Property %d", win.Query.PropertyID)
	}
	return fmt.Sprintf("Property %d • %s", win.Query.PropertyID, strings.Join(titles, " | "))
}

// tabular flattens result.Data into a header and rows. long selects the
// one-row-per-cell shape of a window, used by the delimited formats.
func tabular(result *model.Result, long bool) ([]string, [][]string, error) {
	switch v := result.Data.(type) {
	case *grid.Window:
		if long {
			h, r := windowLong(v)
			return h, r, nil
		}
		h, r := windowGrid(v)
		return h, r, nil
	case *timeaxis.Axis:
		h, r := axisRows(v)
		return h, r, nil
	case []model.RoomCategory:
		h, r := roomRows(v)
		return h, r, nil
	case *analyze.Report:
		h, r := summaryRows(v)
		return h, r, nil
	case *model.Table:
		return v.Columns, v.Rows, nil
	default:
		return nil, nil, fmt.Errorf("render: unsupported data for kind %q", result.Kind)
	}
}

// ─── Window ───────────────────────────────────────────────────────────────────

// InventoryText is the display text of an inventory cell.
func InventoryText(c grid.Cell) string {
	switch {
	case !c.Present:
		return Missing
	case !c.Open:
		return Closed
	default:
		return strconv.Itoa(c.Available)
	}
}

// RateText is the display text of a rate cell.
func RateText(c grid.Cell) string {
	if !c.Present {
		return Missing
	}
	return util.FormatRate(c.Rate)
}

// CellText dispatches on the row kind.
func CellText(kind grid.RowKind, c grid.Cell) string {
	if kind == grid.RowInventory {
		return InventoryText(c)
	}
	return RateText(c)
}

// DayHeader labels a date column; the first visible day of a month carries
// the month label.
func DayHeader(d grid.DayColumn, first bool) string {
	if first || d.DayOfMonth == "01" {
		return fmt.Sprintf("%s %s %s", d.Weekday, d.Month, d.DayOfMonth)
	}
	return d.Weekday + " " + d.DayOfMonth
}

func windowGrid(win *grid.Window) ([]string, [][]string) {
	header := []string{"ROOM / PLAN"}
	for i, d := range win.Days {
		header = append(header, DayHeader(d, i == 0))
	}
	var rows [][]string
	for _, b := range win.Rooms {
		for _, r := range b.Rows {
			label := "  " + r.Label
			if r.Kind == grid.RowInventory {
				label = fmt.Sprintf("%s (%s)", r.Label, b.ID)
			}
			row := []string{label}
			for _, c := range r.Cells {
				row = append(row, CellText(r.Kind, c))
			}
			rows = append(rows, row)
		}
	}
	return header, rows
}

func windowLong(win *grid.Window) ([]string, [][]string) {
	header := []string{"room_id", "room_name", "row", "plan_id", "plan_name", "date",
		"present", "available", "booked", "open", "rate", "min_stay", "deadline"}
	var rows [][]string
	for _, b := range win.Rooms {
		for _, r := range b.Rows {
			planID, planName := "", ""
			if r.Kind == grid.RowRatePlan {
				planID, planName = strconv.Itoa(r.PlanID), r.Label
			}
			for _, c := range r.Cells {
				row := []string{b.ID, b.Name, string(r.Kind), planID, planName,
					util.FormatDate(c.Date), strconv.FormatBool(c.Present)}
				if r.Kind == grid.RowInventory {
					row = append(row, strconv.Itoa(c.Available), strconv.Itoa(c.Booked),
						strconv.FormatBool(c.Open), "", "", "")
				} else {
					row = append(row, "", "", "", util.FormatRate(c.Rate),
						strconv.Itoa(c.MinStay), strconv.Itoa(c.Deadline))
				}
				rows = append(rows, row)
			}
		}
	}
	return header, rows
}

// ─── Axis / Rooms / Summary ───────────────────────────────────────────────────

func axisRows(a *timeaxis.Axis) ([]string, [][]string) {
	header := []string{"MONTH", "YEAR", "DAYS", "FIRST", "START"}
	var rows [][]string
	for _, m := range a.Months {
		rows = append(rows, []string{
			m.Label,
			strconv.Itoa(m.Year),
			strconv.Itoa(m.Days),
			strconv.Itoa(m.First),
			util.FormatDate(a.Days[m.First].Date),
		})
	}
	return header, rows
}

func roomRows(rooms []model.RoomCategory) ([]string, [][]string) {
	header := []string{"ID", "NAME", "OCCUPANCY", "NIGHTS", "RATE PLANS"}
	var rows [][]string
	for _, r := range rooms {
		names := make([]string, 0, len(r.RatePlans))
		for _, p := range r.RatePlans {
			names = append(names, p.Name)
		}
		rows = append(rows, []string{
			r.ID,
			util.Truncate(r.Name, 40),
			strconv.Itoa(r.Occupancy),
			strconv.Itoa(len(r.Inventory)),
			util.Truncate(strings.Join(names, ", "), 50),
		})
	}
	return header, rows
}

func summaryRows(rep *analyze.Report) ([]string, [][]string) {
	header := []string{"ROOM", "NIGHTS", "AVAIL", "BOOKED", "BOOKED %", "CLOSED",
		"PLAN", "MIN", "MEDIAN", "MEAN", "MAX", "WEEKEND"}
	var rows [][]string
	for _, s := range rep.Rooms {
		room := []string{
			util.Truncate(s.Name, 30),
			strconv.Itoa(s.Nights),
			strconv.Itoa(s.Available),
			strconv.Itoa(s.Booked),
			fmt.Sprintf("%.1f%%", s.BookedPct),
			strconv.Itoa(s.ClosedNights),
		}
		if len(s.Plans) == 0 {
			rows = append(rows, append(room, Missing, "", "", "", "", ""))
			continue
		}
		for i, p := range s.Plans {
			lead := room
			if i > 0 {
				lead = make([]string, len(room))
			}
			row := append(append([]string{}, lead...),
				util.Truncate(p.Name, 24),
				formatStat(p.Min),
				formatStat(p.Median),
				formatStat(p.Mean),
				formatStat(p.Max),
				formatStat(p.WeekendAvg),
			)
			rows = append(rows, row)
		}
	}
	t := rep.Totals
	rows = append(rows, []string{
		fmt.Sprintf("TOTAL (%d rooms)", t.Rooms),
		strconv.Itoa(t.Nights),
		strconv.Itoa(t.Available),
		strconv.Itoa(t.Booked),
		fmt.Sprintf("%.1f%%", t.BookedPct),
		strconv.Itoa(t.Closed),
		"", "", "", "", "", "",
	})
	return header, rows
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	header, rows, err := tabular(result, true)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	header, rows, err := tabular(result, false)
	if err != nil {
		return err
	}
	if t, ok := result.Data.(*model.Table); ok && t.Title != "" {
		fmt.Fprintf(w, "### %s\n\n", mdEscape(t.Title))
	}
	esc := func(cells []string) string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = mdEscape(c)
		}
		return "| " + strings.Join(out, " | ") + " |"
	}
	fmt.Fprintln(w, esc(header))
	sepRow := make([]string, len(header))
	for i := range sepRow {
		sepRow[i] = "---"
	}
	fmt.Fprintln(w, "| "+strings.Join(sepRow, " | ")+" |")
	for _, row := range rows {
		fmt.Fprintln(w, esc(row))
	}
	return nil
}

// ─── Footer ───────────────────────────────────────────────────────────────────

// PrintFooter writes warnings, the load status line and, when verbose, the
// stats line.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if result.Status != "" {
		fmt.Fprintln(w, result.Status)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %d pages • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.Pages,
			result.Stats.DurationMs,
			src,
		)
	}
}

// SentinelStatus is the human-readable load status of a window's sentinel.
func SentinelStatus(s grid.Sentinel) string {
	switch {
	case s.Error != "":
		return fmt.Sprintf("✗ loading more rooms failed: %s (retry with --refresh, or press r in the tui)", s.Error)
	case s.State == pagination.Exhausted.String():
		return fmt.Sprintf("All rooms loaded (%d pages)", s.Loaded)
	case s.HasMore:
		return fmt.Sprintf("More rooms available (%d pages loaded, use --all to load everything)", s.Loaded)
	default:
		return ""
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatStat renders a statistic; NaN (no data) renders as ".".
func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return util.FormatRate(v)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
