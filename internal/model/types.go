// Package model defines the canonical data types used throughout ratecal.
// These types mirror the rate-calendar backend's entities and the result
// envelope every command renders.
package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ─── Backend Entity Types ─────────────────────────────────────────────────────

// InventoryDay is one night of room inventory.
type InventoryDay struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Available int       `json:"available"`
	Booked    int       `json:"booked"`
	Status    bool      `json:"status"` // false = closed for sale
}

// RateDay is one night of a rate plan.
type RateDay struct {
	ID                  string    `json:"id"`
	Date                time.Time `json:"date"`
	Rate                float64   `json:"rate"`
	MinLengthOfStay     int       `json:"min_length_of_stay"`
	ReservationDeadline int       `json:"reservation_deadline"`
}

// RatePlan is a named price schedule for a room category.
type RatePlan struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Calendar []RateDay `json:"calendar"`
}

// RoomCategory is one row block of the calendar grid.
type RoomCategory struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Occupancy int            `json:"occupancy"`
	Inventory []InventoryDay `json:"inventory_calendar"`
	RatePlans []RatePlan     `json:"rate_plans"`
}

// Page is one fetch result. NextCursor is empty when the backend signalled
// that no further pages exist.
type Page struct {
	Rooms      []RoomCategory `json:"room_categories"`
	Cursor     string         `json:"cursor"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// HasMore reports whether the backend offered a continuation.
func (p *Page) HasMore() bool { return p.NextCursor != "" }

// ─── Query ────────────────────────────────────────────────────────────────────

// Query is the parameter set a dataset is fetched under. Any change to a
// Query invalidates every page fetched with the previous one.
type Query struct {
	PropertyID int       `json:"property_id" validate:"required,gt=0"`
	Start      time.Time `json:"start_date" validate:"required"`
	End        time.Time `json:"end_date" validate:"required"`
}

var validate = validator.New()

// Validate checks field-level constraints. Date ordering is checked by the
// time axis, which owns InvalidRangeError.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid query: %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid query: %w", err)
	}
	return nil
}

// Equal reports whether two queries address the same dataset.
func (q Query) Equal(o Query) bool {
	return q.PropertyID == o.PropertyID && q.Start.Equal(o.Start) && q.End.Equal(o.End)
}

// Key is a stable string form used for store keys and logging.
func (q Query) Key() string {
	return fmt.Sprintf("prop:%d|start:%s|end:%s",
		q.PropertyID, q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
	Pages      int   `json:"pages"`
}

// Result is the uniform envelope returned by every command.
// Renderers switch on Kind to format Data.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Status      string      `json:"status,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindWindow  = "window"
	KindAxis    = "axis"
	KindRooms   = "rooms"
	KindSummary = "summary"
	KindTable   = "table"
)

// Table is a generic titled grid of strings for KindTable results.
type Table struct {
	Title   string     `json:"title,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}
