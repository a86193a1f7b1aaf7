package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/ratecal/internal/app"
	"github.com/derickschaefer/ratecal/internal/config"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/pipeline"
	"github.com/derickschaefer/ratecal/internal/render"
	"github.com/derickschaefer/ratecal/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func jan(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

// fixNow pins the default-range clock to Jan 1 2024.
func fixNow(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { now = prev })
}

// isolate runs the test in an empty directory with no ratecal environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	for _, k := range []string{config.EnvAPIKey, config.EnvDBPath, config.EnvBaseURL} {
		t.Setenv(k, "")
	}
	return dir
}

// writeRooms exports n rooms with two nights each to a JSONL file.
func writeRooms(t *testing.T, dir string, n int) string {
	t.Helper()
	var rooms []model.RoomCategory
	for i := 0; i < n; i++ {
		room := model.RoomCategory{ID: string(rune('a' + i)), Name: "Room", Occupancy: 2}
		plan := model.RatePlan{ID: 1, Name: "BAR"}
		for d := 1; d <= 2; d++ {
			room.Inventory = append(room.Inventory, model.InventoryDay{Date: jan(d), Available: 3, Booked: 1, Status: true})
			plan.Calendar = append(plan.Calendar, model.RateDay{Date: jan(d), Rate: 100})
		}
		room.RatePlans = []model.RatePlan{plan}
		rooms = append(rooms, room)
	}
	path := filepath.Join(dir, "rooms.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := pipeline.WriteJSONL(f, rooms); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		globalFlags.APIKey, globalFlags.Format, globalFlags.Out = "", "", ""
		globalFlags.From, globalFlags.CursorMode, globalFlags.Timeout = "", "", ""
		globalFlags.Quiet, globalFlags.Verbose = false, false
		summaryQuery, viewQuery, axisQuery = queryFlags{}, queryFlags{}, queryFlags{}
		viewLeft, viewTop, viewWidth, viewHeight, viewAll, viewScrollDate = 0, 0, 0, 30, false, ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// ─── Output ───────────────────────────────────────────────────────────────────

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestResolveFormat(t *testing.T) {
	t.Cleanup(func() { globalFlags.Format = "" })

	globalFlags.Format = ""
	if got := resolveFormat(""); got != render.FormatTable {
		t.Errorf("expected table fallback, got %q", got)
	}
	if got := resolveFormat("csv"); got != "csv" {
		t.Errorf("expected config format, got %q", got)
	}
	globalFlags.Format = "json"
	if got := resolveFormat("csv"); got != "json" {
		t.Errorf("flag should win, got %q", got)
	}
}

// ─── Query flags ──────────────────────────────────────────────────────────────

func TestResolveDefaults(t *testing.T) {
	fixNow(t)
	cfg := config.Defaults()
	cfg.PropertyID = 7

	q, err := (&queryFlags{}).resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.PropertyID != 7 {
		t.Errorf("expected property from config, got %d", q.PropertyID)
	}
	if !q.Start.Equal(jan(1)) {
		t.Errorf("expected start today, got %s", q.Start)
	}
	if want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC); !q.End.Equal(want) {
		t.Errorf("expected end %s, got %s", want, q.End)
	}
}

func TestResolveFlagsOverrideConfig(t *testing.T) {
	fixNow(t)
	cfg := config.Defaults()
	cfg.PropertyID = 7

	q, err := (&queryFlags{property: 3, start: "2024-02-01", end: "2024-02-10"}).resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.PropertyID != 3 || !q.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected query: %+v", q)
	}
}

func TestResolveErrors(t *testing.T) {
	fixNow(t)
	cfg := config.Defaults()

	if _, err := (&queryFlags{}).resolve(cfg); err == nil || !strings.Contains(err.Error(), "no property") {
		t.Errorf("expected missing property error, got %v", err)
	}
	cfg.PropertyID = 1
	if _, err := (&queryFlags{start: "01/02/2024"}).resolve(cfg); err == nil {
		t.Error("expected invalid --start error")
	}
	if _, err := (&queryFlags{end: "2026-01-02"}).resolve(cfg); err == nil || !strings.Contains(err.Error(), "years ahead") {
		t.Errorf("expected horizon error, got %v", err)
	}
	if _, err := (&queryFlags{end: "2026-01-01"}).resolve(cfg); err != nil {
		t.Errorf("end on the horizon should be allowed: %v", err)
	}
}

func TestResolveOfflineProperty(t *testing.T) {
	fixNow(t)
	cfg := config.Defaults()
	cfg.From = "rooms.jsonl"
	q, err := (&queryFlags{}).resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.PropertyID != offlineProperty {
		t.Errorf("expected offline property, got %d", q.PropertyID)
	}
}

// ─── Commands ─────────────────────────────────────────────────────────────────

func TestSummaryCommandFromFile(t *testing.T) {
	fixNow(t)
	dir := isolate(t)
	path := writeRooms(t, dir, 3)

	out, err := execute(t, "summary", "--from", path, "--start", "2024-01-01", "--end", "2024-01-02",
		"--format", "json", "--quiet")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	var res struct {
		Kind string `json:"kind"`
		Data struct {
			Totals struct {
				Rooms  int `json:"rooms"`
				Nights int `json:"nights"`
				Booked int `json:"booked"`
			} `json:"totals"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if res.Kind != model.KindSummary {
		t.Errorf("expected kind summary, got %q", res.Kind)
	}
	if res.Data.Totals.Rooms != 3 || res.Data.Totals.Nights != 6 || res.Data.Totals.Booked != 6 {
		t.Errorf("unexpected totals: %+v", res.Data.Totals)
	}
}

func TestAxisCommandCSV(t *testing.T) {
	fixNow(t)
	isolate(t)

	out, err := execute(t, "axis", "--start", "2024-01-30", "--end", "2024-02-02", "--format", "csv", "--quiet")
	if err != nil {
		t.Fatalf("axis: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v\n%s", err, out)
	}
	// One row per month: Jan 30-31 and Feb 1-2.
	if len(records) != 3 {
		t.Fatalf("expected header and 2 months, got %d records:\n%s", len(records), out)
	}
	if records[1][0] != "Jan" || records[1][2] != "2" || records[2][0] != "Feb" || records[2][2] != "2" {
		t.Errorf("unexpected month rows: %v", records[1:])
	}
}

func TestViewCommandRejectsBadRange(t *testing.T) {
	fixNow(t)
	dir := isolate(t)
	path := writeRooms(t, dir, 1)

	if _, err := execute(t, "view", "--from", path, "--start", "2024-01-05", "--end", "2024-01-01", "--quiet"); err == nil {
		t.Error("expected an error for an end before start")
	}
}

func TestViewCommandScrollDateAcceptsTimestamp(t *testing.T) {
	fixNow(t)
	dir := isolate(t)
	path := writeRooms(t, dir, 1)

	out, err := execute(t, "view", "--from", path, "--start", "2024-01-01", "--end", "2024-01-31",
		"--scroll-date", "2024-01-15T09:00:00Z", "--width", "40", "--format", "json", "--quiet")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var res struct {
		Data struct {
			Position struct {
				Left int `json:"left"`
			} `json:"position"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if want := 14 * config.DefaultCellWidth; res.Data.Position.Left != want {
		t.Errorf("expected left %d, got %d", want, res.Data.Position.Left)
	}
}

// ─── Partial loads ────────────────────────────────────────────────────────────

func TestRequireCompleteRejectsFailedLaterPage(t *testing.T) {
	failure := errors.New("backend unavailable")
	fetcher := pagination.FetcherFunc(func(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
		if cursor != "" {
			return nil, failure
		}
		return &model.Page{Rooms: []model.RoomCategory{{ID: "a", Name: "A"}}, NextCursor: "2"}, nil
	})
	deps := &app.Deps{Config: config.Defaults(), Fetcher: fetcher}
	q := model.Query{PropertyID: 1, Start: jan(1), End: jan(2)}

	g, err := loadGrid(context.Background(), deps, q, 0, 0, true)
	if err != nil {
		t.Fatalf("a failed second page should still return the grid: %v", err)
	}
	if len(g.Rooms()) != 1 {
		t.Fatalf("expected the first page's room, got %d", len(g.Rooms()))
	}
	err = requireComplete(g, "chart")
	if !errors.Is(err, failure) {
		t.Fatalf("expected the fetch failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "chart incomplete after 1 rooms") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestRequireCompleteAcceptsFullLoad(t *testing.T) {
	fixNow(t)
	dir := isolate(t)
	path := writeRooms(t, dir, 2)

	cfg := config.Defaults()
	cfg.From = path
	deps := &app.Deps{Config: cfg}
	q := model.Query{PropertyID: offlineProperty, Start: jan(1), End: jan(2)}

	g, err := loadGrid(context.Background(), deps, q, 0, 0, true)
	if err != nil {
		t.Fatalf("loadGrid: %v", err)
	}
	if err := requireComplete(g, "chart"); err != nil {
		t.Errorf("complete load should pass: %v", err)
	}
}

// ─── Version ──────────────────────────────────────────────────────────────────

func TestVersionJSONReportsSchema(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if info.Version != Version || info.Schema != store.CurrentSchema {
		t.Errorf("unexpected version info: %+v", info)
	}
}

func TestVersionText(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "ratecal "+Version) || !strings.Contains(out, "schema  v1") {
		t.Errorf("unexpected text output:\n%s", out)
	}
}
