// Package source provides page fetchers layered over the backend client:
// a write-through bbolt cache and an offline fetcher that pages through an
// exported JSONL file.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/pipeline"
	"github.com/derickschaefer/ratecal/internal/store"
)

// ─── Cached ───────────────────────────────────────────────────────────────────

// CacheOptions controls how Cached uses the store.
type CacheOptions struct {
	// Refresh skips cache reads but still writes fetched pages.
	Refresh bool
	// NoCache bypasses the store entirely.
	NoCache bool
}

// Cached serves pages from the store when present and writes fetched pages
// through. Identical concurrent requests share one upstream call.
type Cached struct {
	upstream pagination.Fetcher
	store    *store.Store
	opts     CacheOptions
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps upstream with st. A nil st behaves like NoCache.
func NewCached(upstream pagination.Fetcher, st *store.Store, opts CacheOptions) *Cached {
	if st == nil {
		opts.NoCache = true
	}
	return &Cached{upstream: upstream, store: st, opts: opts}
}

// FetchPage implements pagination.Fetcher.
func (c *Cached) FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	key := store.PageKey(q, cursor)

	if !c.opts.NoCache && !c.opts.Refresh {
		page, fetchedAt, ok, err := c.store.GetPage(q, cursor)
		if err != nil {
			slog.Warn("ignoring unreadable cached page", "key", key, "err", err)
		} else if ok {
			c.hits.Add(1)
			slog.Debug("cache hit", "key", key, "fetched_at", fetchedAt)
			return &page, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		c.misses.Add(1)
		page, err := c.upstream.FetchPage(ctx, q, cursor)
		if err != nil {
			return nil, err
		}
		if !c.opts.NoCache {
			if err := c.store.PutPage(q, cursor, *page); err != nil {
				slog.Warn("caching page failed", "key", key, "err", err)
			}
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("shared in-flight fetch", "key", key)
	}
	page := *v.(*model.Page)
	return &page, nil
}

// Hits returns the number of pages served from the store.
func (c *Cached) Hits() int64 { return c.hits.Load() }

// Misses returns the number of upstream fetches performed.
func (c *Cached) Misses() int64 { return c.misses.Load() }

// ─── File ─────────────────────────────────────────────────────────────────────

// DefaultPageSize is the number of room categories File serves per page.
const DefaultPageSize = 10

// File pages through room categories loaded from a JSONL export. Its
// cursor is the decimal offset of the page's first room.
type File struct {
	path     string
	rooms    []model.RoomCategory
	pageSize int
}

// OpenFile loads path. pageSize <= 0 means DefaultPageSize.
func OpenFile(path string, pageSize int) (*File, error) {
	rooms, err := pipeline.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFile(path, rooms, pageSize), nil
}

// NewFile serves rooms in pages of pageSize.
func NewFile(name string, rooms []model.RoomCategory, pageSize int) *File {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &File{path: name, rooms: rooms, pageSize: pageSize}
}

// Len returns the number of rooms in the file.
func (f *File) Len() int { return len(f.rooms) }

// FetchPage implements pagination.Fetcher. Calendars are trimmed to the
// query's date range.
func (f *File) FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: invalid cursor %q", f.path, cursor)
		}
		offset = n
	}
	if offset > len(f.rooms) {
		offset = len(f.rooms)
	}
	end := offset + f.pageSize
	if end > len(f.rooms) {
		end = len(f.rooms)
	}

	page := &model.Page{Cursor: cursor}
	for _, room := range f.rooms[offset:end] {
		page.Rooms = append(page.Rooms, clip(room, q))
	}
	if end < len(f.rooms) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// clip returns room with every calendar restricted to q's inclusive range.
func clip(room model.RoomCategory, q model.Query) model.RoomCategory {
	out := room
	out.Inventory = nil
	for _, d := range room.Inventory {
		if within(d.Date, q) {
			out.Inventory = append(out.Inventory, d)
		}
	}
	out.RatePlans = make([]model.RatePlan, len(room.RatePlans))
	for i, p := range room.RatePlans {
		cp := p
		cp.Calendar = nil
		for _, d := range p.Calendar {
			if within(d.Date, q) {
				cp.Calendar = append(cp.Calendar, d)
			}
		}
		out.RatePlans[i] = cp
	}
	return out
}

func within(d time.Time, q model.Query) bool {
	return !d.Before(q.Start) && !d.After(q.End)
}
