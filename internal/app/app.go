// Package app wires together configuration, the page source, the local store
// and the grid into a single Deps struct that commands receive at runtime.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/derickschaefer/ratecal/internal/backend"
	"github.com/derickschaefer/ratecal/internal/config"
	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/pagination"
	"github.com/derickschaefer/ratecal/internal/source"
	"github.com/derickschaefer/ratecal/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Client, Store and Fetcher are built on demand.
type Deps struct {
	Config  *config.Config
	Client  *backend.Client
	Store   *store.Store
	Fetcher pagination.Fetcher
	Cache   *source.Cached // nil when reading from a file
	File    *source.File   // non-nil when Config.From is set
}

// New builds a Deps from resolved config. It fails only on invalid settings;
// missing credentials surface from RequireFetcher.
func New(cfg *config.Config) (*Deps, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &Deps{Config: cfg}, nil
}

// RequireStore opens the local store at Config.DBPath if it is not open yet.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	if d.Config.DBPath == "" {
		return errors.New("no database path configured (set db_path or RATECAL_DB_PATH)")
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return err
	}
	d.Store = s
	return nil
}

// RequireFetcher builds the page source: the --from file when set, otherwise
// the backend client behind the write-through store cache. A store that
// cannot be opened degrades to uncached fetching.
func (d *Deps) RequireFetcher() error {
	if d.Fetcher != nil {
		return nil
	}
	cfg := d.Config

	if cfg.From != "" {
		f, err := source.OpenFile(cfg.From, cfg.PageSize)
		if err != nil {
			return err
		}
		d.File, d.Fetcher = f, f
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := backend.ParseCursorMode(cfg.CursorMode)
	if err != nil {
		return err
	}
	d.Client = backend.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.Rate, cfg.Debug, mode)

	if !cfg.NoCache {
		if err := d.RequireStore(); err != nil {
			slog.Warn("local store unavailable, fetching uncached", "path", cfg.DBPath, "err", err)
		}
	}
	d.Cache = source.NewCached(d.Client, d.Store, source.CacheOptions{
		Refresh: cfg.Refresh,
		NoCache: cfg.NoCache,
	})
	d.Fetcher = d.Cache
	return nil
}

// NewGrid builds a grid over a fresh controller for the configured source.
func (d *Deps) NewGrid(l *loop.Loop) (*grid.Grid, error) {
	if err := d.RequireFetcher(); err != nil {
		return nil, err
	}
	var opts []pagination.Option
	if d.Client != nil {
		opts = append(opts, pagination.WithInitialCursor(backend.InitialCursor))
	}
	ctrl := pagination.New(d.Fetcher, opts...)
	return grid.New(ctrl, l, grid.Options{
		CellWidth:     d.Config.CellWidth,
		Overscan:      d.Config.Overscan,
		FrameInterval: d.Config.FrameInterval,
	}), nil
}

// CacheHit reports whether every page so far came from the store.
func (d *Deps) CacheHit() bool {
	return d.Cache != nil && d.Cache.Hits() > 0 && d.Cache.Misses() == 0
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	if err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
