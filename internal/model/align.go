package model

import (
	"fmt"
	"time"
)

// CheckAlignment verifies that the room's inventory calendar and every rate
// plan calendar carry exactly one entry per day in days. It returns one
// message per problem found; nil means the room is aligned.
func CheckAlignment(days []time.Time, room RoomCategory) []string {
	var problems []string

	inv := make([]time.Time, len(room.Inventory))
	for i, d := range room.Inventory {
		inv[i] = d.Date
	}
	for _, p := range diffDates(days, inv) {
		problems = append(problems, fmt.Sprintf("room %s inventory: %s", room.ID, p))
	}

	for _, plan := range room.RatePlans {
		rates := make([]time.Time, len(plan.Calendar))
		for i, d := range plan.Calendar {
			rates[i] = d.Date
		}
		for _, p := range diffDates(days, rates) {
			problems = append(problems, fmt.Sprintf("room %s rate plan %d: %s", room.ID, plan.ID, p))
		}
	}
	return problems
}

func diffDates(want, got []time.Time) []string {
	expected := make(map[string]bool, len(want))
	for _, d := range want {
		expected[d.Format("2006-01-02")] = true
	}

	var problems []string
	seen := make(map[string]bool, len(got))
	for _, d := range got {
		k := d.Format("2006-01-02")
		switch {
		case seen[k]:
			problems = append(problems, "duplicate date "+k)
		case !expected[k]:
			problems = append(problems, "unexpected date "+k)
		}
		seen[k] = true
	}
	for _, d := range want {
		if k := d.Format("2006-01-02"); !seen[k] {
			problems = append(problems, "missing date "+k)
		}
	}
	return problems
}

// InventoryByDate indexes the room's inventory calendar by YYYY-MM-DD.
func (r RoomCategory) InventoryByDate() map[string]InventoryDay {
	out := make(map[string]InventoryDay, len(r.Inventory))
	for _, d := range r.Inventory {
		out[d.Date.Format("2006-01-02")] = d
	}
	return out
}

// RatesByDate indexes the plan's calendar by YYYY-MM-DD.
func (p RatePlan) RatesByDate() map[string]RateDay {
	out := make(map[string]RateDay, len(p.Calendar))
	for _, d := range p.Calendar {
		out[d.Date.Format("2006-01-02")] = d
	}
	return out
}
