// Package timeaxis turns an inclusive date range into the ordered day
// sequence and month groupings that drive every horizontal pane of the
// calendar grid. All functions are pure; Model adds memoization on the
// exact (start, end) pair.
package timeaxis

import (
	"fmt"
	"sync"
	"time"
)

// Day is a single column of the calendar. Date is a civil date at UTC midnight.
type Day struct {
	Date  time.Time `json:"date"`
	Month string    `json:"month"`
}

// Weekday returns the short weekday label ("Mon").
func (d Day) Weekday() string { return d.Date.Format("Mon") }

// DayOfMonth returns the zero-padded day number ("07").
func (d Day) DayOfMonth() string { return d.Date.Format("02") }

// MonthGroup is a run of consecutive Days in the same calendar month.
type MonthGroup struct {
	Label string     `json:"label"` // "Jan"
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Days  int        `json:"days"`
	First int        `json:"first"` // index of the group's first Day
}

// Title returns the label with its year ("Jan 2024").
func (g MonthGroup) Title() string { return fmt.Sprintf("%s %d", g.Label, g.Year) }

// Axis is the computed time axis for one date range.
type Axis struct {
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Days   []Day        `json:"days"`
	Months []MonthGroup `json:"months"`
}

// Len returns the number of days on the axis.
func (a *Axis) Len() int { return len(a.Days) }

// IndexOf returns the column index of date, or -1 if it is outside the axis.
func (a *Axis) IndexOf(date time.Time) int {
	if len(a.Days) == 0 {
		return -1
	}
	d := Civil(date)
	if d.Before(a.Start) || d.After(a.End) {
		return -1
	}
	return int(d.Sub(a.Start) / (24 * time.Hour))
}

// InvalidRangeError reports an end date that precedes the start date.
type InvalidRangeError struct {
	Field string
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	field := e.Field
	if field == "" {
		field = "date_range"
	}
	return fmt.Sprintf("%s: end date %s precedes start date %s",
		field, e.End.Format("2006-01-02"), e.Start.Format("2006-01-02"))
}

// Civil truncates t to its calendar date at UTC midnight.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Build computes the axis for the inclusive range [start, end].
func Build(start, end time.Time) (*Axis, error) {
	start, end = Civil(start), Civil(end)
	if end.Before(start) {
		return nil, &InvalidRangeError{Field: "date_range", Start: start, End: end}
	}

	n := int(end.Sub(start)/(24*time.Hour)) + 1
	axis := &Axis{
		Start: start,
		End:   end,
		Days:  make([]Day, 0, n),
	}

	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, i)
		label := date.Month().String()[:3]
		axis.Days = append(axis.Days, Day{Date: date, Month: label})

		last := len(axis.Months) - 1
		if last >= 0 && axis.Months[last].Month == date.Month() && axis.Months[last].Year == date.Year() {
			axis.Months[last].Days++
			continue
		}
		axis.Months = append(axis.Months, MonthGroup{
			Label: label,
			Year:  date.Year(),
			Month: date.Month(),
			Days:  1,
			First: i,
		})
	}
	return axis, nil
}

// Model memoizes the most recent axis. Safe for concurrent use.
type Model struct {
	mu    sync.Mutex
	start time.Time
	end   time.Time
	axis  *Axis
}

// Axis returns the axis for [start, end], recomputing only when the pair
// differs from the previous call.
func (m *Model) Axis(start, end time.Time) (*Axis, error) {
	start, end = Civil(start), Civil(end)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.axis != nil && m.start.Equal(start) && m.end.Equal(end) {
		return m.axis, nil
	}
	axis, err := Build(start, end)
	if err != nil {
		return nil, err
	}
	m.start, m.end, m.axis = start, end, axis
	return axis, nil
}
