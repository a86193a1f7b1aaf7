// Package analyze computes occupancy and rate summaries over loaded room
// categories. All functions are pure; no I/O.
package analyze

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/ratecal/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// RoomSummary holds inventory statistics for one room category.
type RoomSummary struct {
	RoomID       string        `json:"room_id"`
	Name         string        `json:"name"`
	Occupancy    int           `json:"occupancy"`
	Nights       int           `json:"nights"`        // nights with an inventory entry
	Available    int           `json:"available"`     // sum of available units
	Booked       int           `json:"booked"`        // sum of booked units
	BookedPct    float64       `json:"booked_pct"`    // booked / (available + booked) * 100
	ClosedNights int           `json:"closed_nights"` // nights with status closed
	Plans        []PlanSummary `json:"rate_plans"`
}

// PlanSummary holds rate statistics for one rate plan.
type PlanSummary struct {
	PlanID     int     `json:"plan_id"`
	Name       string  `json:"name"`
	Nights     int     `json:"nights"`
	Min        float64 `json:"min"`
	Median     float64 `json:"median"`
	Mean       float64 `json:"mean"`
	Max        float64 `json:"max"`
	Std        float64 `json:"std"`
	WeekendAvg float64 `json:"weekend_avg"` // Friday and Saturday nights
	MaxMinStay int     `json:"max_min_stay"`
}

// MarshalJSON writes statistics without data as null.
func (p PlanSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PlanID     int      `json:"plan_id"`
		Name       string   `json:"name"`
		Nights     int      `json:"nights"`
		Min        *float64 `json:"min"`
		Median     *float64 `json:"median"`
		Mean       *float64 `json:"mean"`
		Max        *float64 `json:"max"`
		Std        *float64 `json:"std"`
		WeekendAvg *float64 `json:"weekend_avg"`
		MaxMinStay int      `json:"max_min_stay"`
	}{
		p.PlanID, p.Name, p.Nights,
		stat(p.Min), stat(p.Median), stat(p.Mean), stat(p.Max), stat(p.Std), stat(p.WeekendAvg),
		p.MaxMinStay,
	})
}

func stat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Totals aggregates every room of a summary.
type Totals struct {
	Rooms     int     `json:"rooms"`
	Nights    int     `json:"nights"`
	Available int     `json:"available"`
	Booked    int     `json:"booked"`
	BookedPct float64 `json:"booked_pct"`
	Closed    int     `json:"closed_nights"`
}

// Report is the KindSummary payload.
type Report struct {
	Query  model.Query   `json:"query"`
	Rooms  []RoomSummary `json:"rooms"`
	Totals Totals        `json:"totals"`
}

// Summarize computes a report over rooms, counting only nights inside q's
// inclusive date range.
func Summarize(q model.Query, rooms []model.RoomCategory) Report {
	r := Report{Query: q}
	for _, room := range rooms {
		s := SummarizeRoom(q, room)
		r.Rooms = append(r.Rooms, s)
		r.Totals.Nights += s.Nights
		r.Totals.Available += s.Available
		r.Totals.Booked += s.Booked
		r.Totals.Closed += s.ClosedNights
	}
	r.Totals.Rooms = len(r.Rooms)
	r.Totals.BookedPct = bookedPct(r.Totals.Available, r.Totals.Booked)
	return r
}

// SummarizeRoom computes the summary of a single room category.
func SummarizeRoom(q model.Query, room model.RoomCategory) RoomSummary {
	s := RoomSummary{RoomID: room.ID, Name: room.Name, Occupancy: room.Occupancy}
	for _, d := range room.Inventory {
		if !inRange(d.Date, q) {
			continue
		}
		s.Nights++
		s.Available += d.Available
		s.Booked += d.Booked
		if !d.Status {
			s.ClosedNights++
		}
	}
	s.BookedPct = bookedPct(s.Available, s.Booked)
	for _, p := range room.RatePlans {
		s.Plans = append(s.Plans, summarizePlan(q, p))
	}
	return s
}

func summarizePlan(q model.Query, p model.RatePlan) PlanSummary {
	ps := PlanSummary{PlanID: p.ID, Name: p.Name}
	var vals, weekend []float64
	for _, d := range p.Calendar {
		if !inRange(d.Date, q) {
			continue
		}
		vals = append(vals, d.Rate)
		if wd := d.Date.Weekday(); wd == time.Friday || wd == time.Saturday {
			weekend = append(weekend, d.Rate)
		}
		if d.MinLengthOfStay > ps.MaxMinStay {
			ps.MaxMinStay = d.MinLengthOfStay
		}
	}
	ps.Nights = len(vals)
	if len(vals) == 0 {
		ps.Min, ps.Median, ps.Mean = math.NaN(), math.NaN(), math.NaN()
		ps.Max, ps.Std, ps.WeekendAvg = math.NaN(), math.NaN(), math.NaN()
		return ps
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	ps.Min = sorted[0]
	ps.Max = sorted[len(sorted)-1]
	ps.Median = percentile(sorted, 50)
	ps.Mean = sumF(vals) / float64(len(vals))
	ps.Std = stddevF(vals, ps.Mean)
	ps.WeekendAvg = math.NaN()
	if len(weekend) > 0 {
		ps.WeekendAvg = sumF(weekend) / float64(len(weekend))
	}
	return ps
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func inRange(d time.Time, q model.Query) bool {
	if !q.Start.IsZero() && d.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && d.After(q.End) {
		return false
	}
	return true
}

func bookedPct(available, booked int) float64 {
	if available+booked == 0 {
		return 0
	}
	return float64(booked) / float64(available+booked) * 100
}

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
