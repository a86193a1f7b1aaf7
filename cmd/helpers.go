package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/app"
	"github.com/derickschaefer/ratecal/internal/config"
	"github.com/derickschaefer/ratecal/internal/grid"
	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/render"
	"github.com/derickschaefer/ratecal/internal/util"
)

// now is the clock used for default date ranges.
var now = time.Now

const (
	// defaultSpan is the range shown when --end is omitted.
	defaultSpanMonths = 4
	// maxHorizonYears bounds how far ahead --end may reach.
	maxHorizonYears = 2
	// offlineProperty is used for --from sources when no property is given.
	offlineProperty = 1
)

// ─── Query flags ──────────────────────────────────────────────────────────────

// queryFlags are the --property/--start/--end flags shared by data commands.
type queryFlags struct {
	property int
	start    string
	end      string
}

func addQueryFlags(c *cobra.Command, f *queryFlags) {
	c.Flags().IntVar(&f.property, "property", 0, "property ID (default: property_id from config)")
	c.Flags().StringVar(&f.start, "start", "", "first night, YYYY-MM-DD (default: today)")
	c.Flags().StringVar(&f.end, "end", "", "last night, YYYY-MM-DD (default: start + 4 months)")
}

// resolve builds the query from flags and config. Date order is checked
// later by the time axis so the error names the range.
func (f *queryFlags) resolve(cfg *config.Config) (model.Query, error) {
	q := model.Query{PropertyID: f.property}
	if q.PropertyID == 0 {
		q.PropertyID = cfg.PropertyID
	}
	if q.PropertyID == 0 && cfg.From != "" {
		q.PropertyID = offlineProperty
	}
	if q.PropertyID <= 0 {
		return q, fmt.Errorf("no property: pass --property or set property_id in config")
	}

	today := now().UTC().Truncate(24 * time.Hour)
	q.Start = today
	if f.start != "" {
		d, err := util.ParseDate(f.start)
		if err != nil {
			return q, fmt.Errorf("invalid --start: %w", err)
		}
		q.Start = d
	}
	q.End = q.Start.AddDate(0, defaultSpanMonths, 0)
	if f.end != "" {
		d, err := util.ParseDate(f.end)
		if err != nil {
			return q, fmt.Errorf("invalid --end: %w", err)
		}
		q.End = d
	}
	if limit := today.AddDate(maxHorizonYears, 0, 0); q.End.After(limit) {
		return q, fmt.Errorf("--end %s is more than %d years ahead (limit %s)",
			util.FormatDate(q.End), maxHorizonYears, util.FormatDate(limit))
	}
	return q, nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns def, or the --out file when set. The returned close
// function must always be called.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	return render.Output(def, globalFlags.Out)
}

// emit renders result to the command's output (or --out) followed by the
// footer, which always goes to the terminal.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	err := render.RenderTo(cmd.OutOrStdout(), globalFlags.Out, result, resolveFormat(deps.Config.Format))
	if err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

func newResult(kind, command string, data interface{}) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
	}
}

// ─── Grid ─────────────────────────────────────────────────────────────────────

// loadGrid builds a grid for the configured source, sizes it and loads q.
// With all set every page is fetched; otherwise only enough to fill the
// viewport. A failed first page is returned as an error; later failures
// stay on the grid's sentinel.
func loadGrid(ctx context.Context, deps *app.Deps, q model.Query, width, height int, all bool) (*grid.Grid, error) {
	g, err := deps.NewGrid(loop.New(time.Now()))
	if err != nil {
		return nil, err
	}
	g.Resize(width, height)

	ctx, cancel := context.WithTimeout(ctx, loadTimeout(deps.Config))
	defer cancel()

	if err := g.Load(ctx, q); err != nil {
		return nil, err
	}
	if all {
		if err := g.LoadAll(ctx); err != nil {
			return nil, err
		}
	}
	if err := g.Controller().Err(); err != nil && len(g.Rooms()) == 0 {
		return nil, err
	}
	return g, nil
}

// requireComplete fails when any page after the first failed to load.
func requireComplete(g *grid.Grid, what string) error {
	if err := g.Controller().Err(); err != nil {
		return fmt.Errorf("%s incomplete after %d rooms: %w", what, len(g.Rooms()), err)
	}
	return nil
}

// loadTimeout bounds a whole multi-page load.
func loadTimeout(cfg *config.Config) time.Duration {
	return 10 * cfg.Timeout
}

func statsFor(deps *app.Deps, g *grid.Grid, started time.Time) model.ResultStats {
	return model.ResultStats{
		CacheHit:   deps.CacheHit(),
		DurationMs: time.Since(started).Milliseconds(),
		Items:      len(g.Rooms()),
		Pages:      len(g.Controller().Dataset().Pages),
	}
}

func contextWithLoadTimeout(cmd *cobra.Command, deps *app.Deps) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), loadTimeout(deps.Config))
}
