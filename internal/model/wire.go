package model

import (
	"fmt"

	"github.com/derickschaefer/ratecal/internal/util"
)

// ─── Wire Format ──────────────────────────────────────────────────────────────

// The backend and the JSONL pipe format both carry dates as YYYY-MM-DD
// strings. These types are that shape; the entity types above hold parsed
// dates.

type WireInventory struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Available int    `json:"available"`
	Status    bool   `json:"status"`
	Booked    int    `json:"booked"`
}

type WireRate struct {
	ID                  string  `json:"id"`
	Date                string  `json:"date"`
	Rate                float64 `json:"rate"`
	MinLengthOfStay     int     `json:"min_length_of_stay"`
	ReservationDeadline int     `json:"reservation_deadline"`
}

type WireRatePlan struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Calendar []WireRate `json:"calendar"`
}

type WireRoom struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Occupancy int             `json:"occupancy"`
	Inventory []WireInventory `json:"inventory_calendar"`
	RatePlans []WireRatePlan  `json:"rate_plans"`
}

// FromWire parses the dates of a wire room.
func FromWire(r WireRoom) (RoomCategory, error) {
	room := RoomCategory{ID: r.ID, Name: r.Name, Occupancy: r.Occupancy}
	room.Inventory = make([]InventoryDay, 0, len(r.Inventory))
	for _, inv := range r.Inventory {
		date, err := util.ParseDate(inv.Date)
		if err != nil {
			return RoomCategory{}, fmt.Errorf("room %s inventory: %w", r.ID, err)
		}
		room.Inventory = append(room.Inventory, InventoryDay{
			ID:        inv.ID,
			Date:      date,
			Available: inv.Available,
			Booked:    inv.Booked,
			Status:    inv.Status,
		})
	}
	for _, p := range r.RatePlans {
		plan := RatePlan{ID: p.ID, Name: p.Name, Calendar: make([]RateDay, 0, len(p.Calendar))}
		for _, rd := range p.Calendar {
			date, err := util.ParseDate(rd.Date)
			if err != nil {
				return RoomCategory{}, fmt.Errorf("room %s rate plan %d: %w", r.ID, p.ID, err)
			}
			plan.Calendar = append(plan.Calendar, RateDay{
				ID:                  rd.ID,
				Date:                date,
				Rate:                rd.Rate,
				MinLengthOfStay:     rd.MinLengthOfStay,
				ReservationDeadline: rd.ReservationDeadline,
			})
		}
		room.RatePlans = append(room.RatePlans, plan)
	}
	return room, nil
}

// ToWire formats a room for the wire.
func ToWire(room RoomCategory) WireRoom {
	w := WireRoom{
		ID:        room.ID,
		Name:      room.Name,
		Occupancy: room.Occupancy,
		Inventory: make([]WireInventory, len(room.Inventory)),
		RatePlans: make([]WireRatePlan, len(room.RatePlans)),
	}
	for i, inv := range room.Inventory {
		w.Inventory[i] = WireInventory{
			ID:        inv.ID,
			Date:      util.FormatDate(inv.Date),
			Available: inv.Available,
			Status:    inv.Status,
			Booked:    inv.Booked,
		}
	}
	for i, p := range room.RatePlans {
		wp := WireRatePlan{ID: p.ID, Name: p.Name, Calendar: make([]WireRate, len(p.Calendar))}
		for j, rd := range p.Calendar {
			wp.Calendar[j] = WireRate{
				ID:                  rd.ID,
				Date:                util.FormatDate(rd.Date),
				Rate:                rd.Rate,
				MinLengthOfStay:     rd.MinLengthOfStay,
				ReservationDeadline: rd.ReservationDeadline,
			}
		}
		w.RatePlans[i] = wp
	}
	return w
}
