package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/store"
	"github.com/derickschaefer/ratecal/internal/util"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local page cache",
	Long: `Commands for inspecting and clearing the local bbolt database.

Every fetched page is written to the store and served back on later runs
for the same property, range and cursor. Pass --refresh to refetch, or
--no-cache to skip the store entirely.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  ratecal cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		table := &model.Table{
			Title:   deps.Store.Path(),
			Columns: []string{"BUCKET", "ROWS", "SIZE"},
		}
		for _, s := range stats {
			table.Rows = append(table.Rows, []string{s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes)})
		}
		return emit(cmd, deps, newResult(model.KindTable, "cache stats", table))
	},
}

// ─── cache list ───────────────────────────────────────────────────────────────

var cacheListProperty int

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached page keys",
	Example: `  ratecal cache list
  ratecal cache list --property 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		keys, err := deps.Store.ListPageKeys(cacheListProperty)
		if err != nil {
			return fmt.Errorf("listing pages: %w", err)
		}
		table := &model.Table{Title: "Cached pages", Columns: []string{"KEY"}}
		for _, k := range keys {
			table.Rows = append(table.Rows, []string{k})
		}
		result := newResult(model.KindTable, "cache list", table)
		result.Status = fmt.Sprintf("%d pages", len(keys))
		return emit(cmd, deps, result)
	},
}

// ─── cache exports ────────────────────────────────────────────────────────────

var cacheExportsCmd = &cobra.Command{
	Use:     "exports",
	Short:   "List recorded JSONL exports",
	Example: `  ratecal cache exports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		exports, err := deps.Store.ListExports()
		if err != nil {
			return fmt.Errorf("listing exports: %w", err)
		}
		sort.Slice(exports, func(i, j int) bool { return exports[i].CreatedAt.Before(exports[j].CreatedAt) })

		table := &model.Table{
			Title:   "Exports",
			Columns: []string{"ID", "PROPERTY", "START", "END", "ROOMS", "PAGES", "PATH", "CREATED"},
		}
		for _, e := range exports {
			table.Rows = append(table.Rows, []string{
				shortID(e.ID),
				fmt.Sprintf("%d", e.Query.PropertyID),
				util.FormatDate(e.Query.Start),
				util.FormatDate(e.Query.End),
				fmt.Sprintf("%d", e.Rooms),
				fmt.Sprintf("%d", e.Pages),
				e.Path,
				e.CreatedAt.Local().Format(time.DateTime),
			})
		}
		return emit(cmd, deps, newResult(model.KindTable, "cache exports", table))
	},
}

// ─── cache drop ───────────────────────────────────────────────────────────────

var cacheDropQuery queryFlags

var cacheDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the cached pages of one query",
	Example: `  ratecal cache drop --property 7 --start 2024-06-01 --end 2024-06-30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		q, err := cacheDropQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		n, err := deps.Store.DeleteQuery(q)
		if err != nil {
			return fmt.Errorf("dropping %s: %w", q.Key(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dropped %d cached pages for %s\n", n, q.Key())
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local store",
	Long: `Delete entries from one or all buckets.

bbolt does not shrink the database file after clearing. Free pages are reused
on the next write. To reclaim disk space, run 'ratecal cache compact'.`,
	Example: `  ratecal cache clear --all
  ratecal cache clear --bucket pages`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <name>\n\nBuckets: %v", store.AllBuckets)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if cacheClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			fmt.Fprintln(cmd.OutOrStdout(), "  Run 'ratecal cache compact' to reclaim disk space.")
			return nil
		}

		if err := deps.Store.ClearBucket(cacheClearBucket); err != nil {
			return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", cacheClearBucket)
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'ratecal cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact copies all live data into a fresh bbolt file and swaps it in
place of the original. The store stays usable afterwards.`,
	Example: `  ratecal cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		// Compact reopens the handle itself, so Close still applies.
		defer deps.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Compacting %s ...\n", deps.Store.Path())

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		saved := before - after
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compaction complete\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(cmd.OutOrStdout(), "  After:  %s\n", humanBytes(after))
		if saved > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheExportsCmd)
	cacheCmd.AddCommand(cacheDropCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheListCmd.Flags().IntVar(&cacheListProperty, "property", 0, "only keys for this property (0 = all)")
	addQueryFlags(cacheDropCmd, &cacheDropQuery)
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear all buckets")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear a specific bucket: pages|exports")
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
