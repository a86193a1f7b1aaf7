package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/app"
	"github.com/derickschaefer/ratecal/internal/config"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ratecal configuration",
	Long: `Read and write ratecal configuration stored in config.json.

Settings resolve in order: defaults, config.json, .env, environment
(RATECAL_API_KEY, RATECAL_DB_PATH, RATECAL_BASE_URL), then flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Set api_key, base_url and property_id to get started.")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.APIKey)
		if err != nil {
			return err
		}
		rows := cfg.Rows(configGetShowSecrets)

		if resolveFormat(cfg.Format) == render.FormatTable && globalFlags.Out == "" {
			printKVTable(cmd.OutOrStdout(), rows)
			return nil
		}
		table := &model.Table{Title: "Configuration", Columns: []string{"KEY", "VALUE"}, Rows: rows}
		return emit(cmd, &app.Deps{Config: cfg}, newResult(model.KindTable, "config get", table))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Args:  cobra.ExactArgs(2),
	Example: `  ratecal config set property_id 7
  ratecal config set cell_width 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		path := config.DefaultConfigFile
		f, err := config.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			tmpl := config.Template()
			f = &tmpl
		}
		if err := f.Set(key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show API key in plain text")
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
