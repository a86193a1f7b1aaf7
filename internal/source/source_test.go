package source_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/source"
	"github.com/derickschaefer/ratecal/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var (
	_ pagination.Fetcher = (*source.Cached)(nil)
	_ pagination.Fetcher = (*source.File)(nil)
)

func testDB(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jan(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func testQuery() model.Query {
	return model.Query{PropertyID: 5, Start: jan(10), End: jan(12)}
}

// countingFetcher returns a one-room page and counts upstream calls.
type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
	fail  bool
}

func (f *countingFetcher) FetchPage(_ context.Context, _ model.Query, cursor string) (*model.Page, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.fail {
		return nil, errors.New("upstream down")
	}
	return &model.Page{Rooms: []model.RoomCategory{{ID: "room-" + cursor}}, Cursor: cursor, NextCursor: "9"}, nil
}

// ─── Cached ───────────────────────────────────────────────────────────────────

func TestCachedWritesThroughAndServesHits(t *testing.T) {
	up := &countingFetcher{}
	c := source.NewCached(up, testDB(t), source.CacheOptions{})

	for i := 0; i < 3; i++ {
		page, err := c.FetchPage(context.Background(), testQuery(), "0")
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if page.Rooms[0].ID != "room-0" || page.NextCursor != "9" {
			t.Errorf("unexpected page: %+v", page)
		}
	}
	if up.calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", up.calls.Load())
	}
	if c.Hits() != 2 || c.Misses() != 1 {
		t.Errorf("hits=%d misses=%d", c.Hits(), c.Misses())
	}
}

func TestCachedRefreshBypassesReads(t *testing.T) {
	st := testDB(t)
	up := &countingFetcher{}
	source.NewCached(up, st, source.CacheOptions{}).FetchPage(context.Background(), testQuery(), "0")

	refresh := source.NewCached(up, st, source.CacheOptions{Refresh: true})
	refresh.FetchPage(context.Background(), testQuery(), "0")
	if up.calls.Load() != 2 {
		t.Errorf("refresh should refetch, got %d calls", up.calls.Load())
	}
	if _, _, ok, _ := st.GetPage(testQuery(), "0"); !ok {
		t.Error("refresh should still write through")
	}
}

func TestCachedNoCacheNeverTouchesStore(t *testing.T) {
	st := testDB(t)
	c := source.NewCached(&countingFetcher{}, st, source.CacheOptions{NoCache: true})
	c.FetchPage(context.Background(), testQuery(), "0")
	if keys, _ := st.ListPageKeys(0); len(keys) != 0 {
		t.Errorf("no-cache wrote %v", keys)
	}

	nilStore := source.NewCached(&countingFetcher{}, nil, source.CacheOptions{})
	if _, err := nilStore.FetchPage(context.Background(), testQuery(), "0"); err != nil {
		t.Errorf("nil store: %v", err)
	}
}

func TestCachedCollapsesConcurrentFetches(t *testing.T) {
	up := &countingFetcher{delay: 50 * time.Millisecond}
	c := source.NewCached(up, nil, source.CacheOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.FetchPage(context.Background(), testQuery(), "3"); err != nil {
				t.Errorf("FetchPage: %v", err)
			}
		}()
	}
	wg.Wait()
	if up.calls.Load() != 1 {
		t.Errorf("expected concurrent identical fetches to share one call, got %d", up.calls.Load())
	}
}

func TestCachedErrorsAreNotCached(t *testing.T) {
	st := testDB(t)
	c := source.NewCached(&countingFetcher{fail: true}, st, source.CacheOptions{})
	if _, err := c.FetchPage(context.Background(), testQuery(), "0"); err == nil {
		t.Fatal("expected upstream error")
	}
	if keys, _ := st.ListPageKeys(0); len(keys) != 0 {
		t.Errorf("failed fetch was cached: %v", keys)
	}
}

// ─── File ─────────────────────────────────────────────────────────────────────

func makeRooms(n int) []model.RoomCategory {
	rooms := make([]model.RoomCategory, n)
	for i := range rooms {
		var inv []model.InventoryDay
		var rates []model.RateDay
		for d := 1; d <= 31; d++ {
			inv = append(inv, model.InventoryDay{Date: jan(d), Available: d})
			rates = append(rates, model.RateDay{Date: jan(d), Rate: float64(100 + d)})
		}
		rooms[i] = model.RoomCategory{
			ID:        fmt.Sprintf("r%02d", i),
			Inventory: inv,
			RatePlans: []model.RatePlan{{ID: 1, Calendar: rates}},
		}
	}
	return rooms
}

func TestFilePagesByOffset(t *testing.T) {
	f := source.NewFile("mem", makeRooms(7), 3)
	c := pagination.New(f)
	tk, err := c.SetQuery(testQuery())
	if err != nil {
		t.Fatalf("SetQuery: %v", err)
	}
	for tk != nil {
		page, err := c.Fetch(context.Background(), tk)
		c.Complete(tk, page, err)
		tk = c.OnSentinel(true)
	}

	d := c.Dataset()
	if len(d.Pages) != 3 || c.RoomCount() != 7 {
		t.Fatalf("expected 3 pages / 7 rooms, got %d / %d", len(d.Pages), c.RoomCount())
	}
	if c.State() != pagination.Exhausted {
		t.Errorf("expected Exhausted, got %s", c.State())
	}
	for i, want := range []string{"", "3", "6"} {
		if d.Pages[i].Cursor != want {
			t.Errorf("page %d cursor: expected %q, got %q", i, want, d.Pages[i].Cursor)
		}
	}
}

func TestFileClipsCalendarsToQuery(t *testing.T) {
	f := source.NewFile("mem", makeRooms(1), 0)
	page, err := f.FetchPage(context.Background(), testQuery(), "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	room := page.Rooms[0]
	if len(room.Inventory) != 3 || len(room.RatePlans[0].Calendar) != 3 {
		t.Fatalf("expected 3 nights, got inventory=%d rates=%d", len(room.Inventory), len(room.RatePlans[0].Calendar))
	}
	days := []time.Time{jan(10), jan(11), jan(12)}
	if problems := model.CheckAlignment(days, room); len(problems) != 0 {
		t.Errorf("clipped room misaligned: %v", problems)
	}
}

func TestFileRejectsBadCursor(t *testing.T) {
	f := source.NewFile("mem", makeRooms(2), 1)
	if _, err := f.FetchPage(context.Background(), testQuery(), "x"); err == nil {
		t.Error("expected error for non-numeric cursor")
	}
	page, err := f.FetchPage(context.Background(), testQuery(), strconv.Itoa(50))
	if err != nil || len(page.Rooms) != 0 || page.HasMore() {
		t.Errorf("cursor past end should yield an empty final page: %+v %v", page, err)
	}
}

func TestOpenFile(t *testing.T) {
	if _, err := source.OpenFile(filepath.Join(t.TempDir(), "missing.jsonl"), 5); err == nil {
		t.Error("expected error for missing file")
	}
}
