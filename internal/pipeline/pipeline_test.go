package pipeline_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pipeline"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func mkroom(id string) model.RoomCategory {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return model.RoomCategory{
		ID:        id,
		Name:      "Room " + id,
		Occupancy: 2,
		Inventory: []model.InventoryDay{{ID: id + "-i", Date: d, Available: 4, Booked: 1, Status: true}},
		RatePlans: []model.RatePlan{{
			ID: 3, Name: "Non-refundable",
			Calendar: []model.RateDay{{ID: id + "-r", Date: d, Rate: 89.5, MinLengthOfStay: 2}},
		}},
	}
}

// ─── ReadRooms ────────────────────────────────────────────────────────────────

func TestReadRoomsBasic(t *testing.T) {
	input := jsonl(
		`{"id":"std","name":"Standard","occupancy":2,"inventory_calendar":[{"id":"i1","date":"2024-03-01","available":5,"status":true,"booked":0}],"rate_plans":[]}`,
		``,
		`// comment lines are skipped`,
		`{"id":"dlx","name":"Deluxe","occupancy":3,"inventory_calendar":[],"rate_plans":[{"id":1,"name":"BAR","calendar":[{"id":"r1","date":"2024-03-01","rate":150,"min_length_of_stay":1,"reservation_deadline":0}]}]}`,
	)
	rooms, err := pipeline.ReadRooms(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].Inventory[0].Date.Month() != time.March || rooms[0].Inventory[0].Available != 5 {
		t.Errorf("inventory not parsed: %+v", rooms[0].Inventory)
	}
	if rooms[1].RatePlans[0].Calendar[0].Rate != 150 {
		t.Errorf("rate not parsed: %+v", rooms[1].RatePlans)
	}
}

func TestReadRoomsErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json": `{"id":`,
		"missing id":   `{"name":"x"}`,
		"bad date":     `{"id":"a","inventory_calendar":[{"date":"01/03/2024"}]}`,
		"empty input":  "\n\n",
	}
	for name, input := range cases {
		if _, err := pipeline.ReadRooms(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestReadRoomsReportsLineNumber(t *testing.T) {
	input := jsonl(`{"id":"a"}`, `not json`)
	_, err := pipeline.ReadRooms(strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 in error, got %v", err)
	}
}

// ─── WriteJSONL ───────────────────────────────────────────────────────────────

func TestWriteJSONLOneLinePerRoom(t *testing.T) {
	var buf bytes.Buffer
	if err := pipeline.WriteJSONL(&buf, []model.RoomCategory{mkroom("a"), mkroom("b")}); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"date":"2024-03-01"`) {
		t.Errorf("dates should be written as YYYY-MM-DD: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"inventory_calendar"`) {
		t.Errorf("expected wire field names: %s", lines[0])
	}
}

func TestWriteThenReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := pipeline.WriteJSONL(f, []model.RoomCategory{mkroom("a"), mkroom("b"), mkroom("c")}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rooms, err := pipeline.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rooms) != 3 || rooms[2].ID != "c" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
	got := rooms[0].RatePlans[0].Calendar[0]
	if got.Rate != 89.5 || got.MinLengthOfStay != 2 || !got.Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("rate day not preserved: %+v", got)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := pipeline.ReadFile(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}
