// Package config handles loading and resolving ratecal configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json in the current working directory
//  3. .env in the current working directory
//  4. environment variables RATECAL_API_KEY, RATECAL_DB_PATH, RATECAL_BASE_URL
//  5. CLI flag --api-key
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile    = "config.json"
	DefaultEnvFile       = ".env"
	DefaultFormat        = "table"
	DefaultTimeout       = 30 * time.Second
	DefaultRate          = 5.0
	DefaultBaseURL       = "http://localhost:8000"
	DefaultCellWidth     = 8
	DefaultOverscan      = 2
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultGestureGain   = 1.0
	DefaultCursorMode    = "server"
	DefaultPageSize      = 10
	EnvAPIKey            = "RATECAL_API_KEY"
	EnvDBPath            = "RATECAL_DB_PATH"
	EnvBaseURL           = "RATECAL_BASE_URL"
)

// File is the on-disk representation of config.json.
type File struct {
	APIKey        string  `json:"api_key"`
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	Rate          float64 `json:"rate"`
	BaseURL       string  `json:"base_url"`
	DBPath        string  `json:"db_path"`
	PropertyID    int     `json:"property_id,omitempty"`
	CellWidth     int     `json:"cell_width,omitempty"`
	Overscan      int     `json:"overscan,omitempty"`
	FrameInterval string  `json:"frame_interval,omitempty"`
	GestureGain   float64 `json:"gesture_gain,omitempty"`
	CursorMode    string  `json:"cursor_mode,omitempty"`
	PageSize      int     `json:"page_size,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	APIKey        string
	Format        string        `validate:"oneof=table json jsonl csv tsv md"`
	Timeout       time.Duration `validate:"gt=0"`
	Rate          float64       `validate:"gt=0"`
	BaseURL       string        `validate:"required,url"`
	DBPath        string
	PropertyID    int           `validate:"gte=0"`
	CellWidth     int           `validate:"gte=3,lte=32"`
	Overscan      int           `validate:"gte=0"`
	FrameInterval time.Duration `validate:"gt=0"`
	GestureGain   float64       `validate:"gt=0"`
	CursorMode    string        `validate:"oneof=server counter"`
	PageSize      int           `validate:"gt=0"`
	ConfigPath    string        // path of the config.json that was loaded (empty if none found)
	EnvPath       string        // path of the .env that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
	From    string // offline JSONL source; empty means the backend
}

// Load resolves configuration from all sources.
// flagAPIKey is the value of --api-key (empty string if not set).
func Load(flagAPIKey string) (*Config, error) {
	cfg := Defaults()

	// Layer 1: config.json
	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: .env, read without touching the process environment
	dotenv := map[string]string{}
	if path, err := filepath.Abs(DefaultEnvFile); err == nil {
		if m, err := godotenv.Read(path); err == nil {
			dotenv = m
			cfg.EnvPath = path
		}
	}

	// Layer 3: environment variables, falling back to .env values
	if v := lookup(EnvAPIKey, dotenv); v != "" {
		cfg.APIKey = v
	}
	if v := lookup(EnvDBPath, dotenv); v != "" {
		cfg.DBPath = v
	}
	if v := lookup(EnvBaseURL, dotenv); v != "" {
		cfg.BaseURL = v
	}

	// Layer 4: CLI flag
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".ratecal", "ratecal.db")
		}
	}

	return cfg, nil
}

// Defaults returns a Config holding only built-in defaults.
func Defaults() *Config {
	return &Config{
		Format:        DefaultFormat,
		Timeout:       DefaultTimeout,
		Rate:          DefaultRate,
		BaseURL:       DefaultBaseURL,
		CellWidth:     DefaultCellWidth,
		Overscan:      DefaultOverscan,
		FrameInterval: DefaultFrameInterval,
		GestureGain:   DefaultGestureGain,
		CursorMode:    DefaultCursorMode,
		PageSize:      DefaultPageSize,
	}
}

func lookup(key string, dotenv map[string]string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return dotenv[key]
}

var validate = validator.New()

// Check validates every resolved setting except the API key.
func (c *Config) Check() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s=%v failed %q", keyFor(fe.Field()), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate returns an error if the settings are invalid or the API key
// needed for backend requests is missing.
func (c *Config) Validate() error {
	if err := c.Check(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return errors.New(
			"API key not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        ratecal --api-key YOUR_KEY ...\n" +
				"  2. Environment:     export RATECAL_API_KEY=YOUR_KEY\n" +
				"  3. .env file:       RATECAL_API_KEY=YOUR_KEY\n" +
				"  4. config.json:     {\"api_key\": \"YOUR_KEY\"}\n\n" +
				"Or browse an exported file offline with --from FILE.",
		)
	}
	return nil
}

// RedactedAPIKey returns the API key with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:2] + "****" + c.APIKey[len(c.APIKey)-2:]
}

// Rows returns the resolved settings as key/value pairs in Keys order.
func (c *Config) Rows(showSecrets bool) [][]string {
	apiKey := c.RedactedAPIKey()
	if showSecrets {
		apiKey = c.APIKey
	}
	if c.APIKey == "" {
		apiKey = "(not set)"
	}
	src := "(not found)"
	if c.ConfigPath != "" {
		src = c.ConfigPath
	}
	env := "(not found)"
	if c.EnvPath != "" {
		env = c.EnvPath
	}
	return [][]string{
		{"api_key", apiKey},
		{"default_format", c.Format},
		{"timeout", c.Timeout.String()},
		{"rate", fmt.Sprintf("%.1f req/s", c.Rate)},
		{"base_url", c.BaseURL},
		{"db_path", c.DBPath},
		{"property_id", strconv.Itoa(c.PropertyID)},
		{"cell_width", strconv.Itoa(c.CellWidth)},
		{"overscan", strconv.Itoa(c.Overscan)},
		{"frame_interval", c.FrameInterval.String()},
		{"gesture_gain", strconv.FormatFloat(c.GestureGain, 'g', -1, 64)},
		{"cursor_mode", c.CursorMode},
		{"page_size", strconv.Itoa(c.PageSize)},
		{"config_file", src},
		{"env_file", env},
	}
}

// ─── File ─────────────────────────────────────────────────────────────────────

// Keys lists every key accepted by File.Set.
var Keys = []string{
	"api_key", "default_format", "timeout", "rate", "base_url", "db_path",
	"property_id", "cell_width", "overscan", "frame_interval", "gesture_gain",
	"cursor_mode", "page_size",
}

var fieldKeys = map[string]string{
	"Format": "default_format", "Timeout": "timeout", "Rate": "rate",
	"BaseURL": "base_url", "PropertyID": "property_id", "CellWidth": "cell_width",
	"Overscan": "overscan", "FrameInterval": "frame_interval",
	"GestureGain": "gesture_gain", "CursorMode": "cursor_mode", "PageSize": "page_size",
}

func keyFor(field string) string {
	if k, ok := fieldKeys[field]; ok {
		return k
	}
	return strings.ToLower(field)
}

// Set assigns one key from its string form. Values are parsed but range
// checks happen in Config.Check after loading.
func (f *File) Set(key, val string) error {
	switch strings.ToLower(key) {
	case "api_key":
		f.APIKey = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration like 30s")
		}
		f.Timeout = val
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "base_url":
		f.BaseURL = val
	case "db_path":
		f.DBPath = val
	case "property_id":
		return setInt(&f.PropertyID, key, val)
	case "cell_width":
		return setInt(&f.CellWidth, key, val)
	case "overscan":
		return setInt(&f.Overscan, key, val)
	case "page_size":
		return setInt(&f.PageSize, key, val)
	case "frame_interval":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("frame_interval must be a duration like 16ms")
		}
		f.FrameInterval = val
	case "gesture_gain":
		g, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("gesture_gain must be a number")
		}
		f.GestureGain = g
	case "cursor_mode":
		f.CursorMode = val
	default:
		keys := append([]string(nil), Keys...)
		sort.Strings(keys)
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(keys, ", "))
	}
	return nil
}

func setInt(dst *int, key, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s must be an integer", key)
	}
	*dst = n
	return nil
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// ReadFile parses a config.json at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config.json not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.APIKey != "" {
		cfg.APIKey = f.APIKey
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.PropertyID > 0 {
		cfg.PropertyID = f.PropertyID
	}
	if f.CellWidth > 0 {
		cfg.CellWidth = f.CellWidth
	}
	if f.Overscan > 0 {
		cfg.Overscan = f.Overscan
	}
	if f.FrameInterval != "" {
		if d, err := time.ParseDuration(f.FrameInterval); err == nil {
			cfg.FrameInterval = d
		}
	}
	if f.GestureGain > 0 {
		cfg.GestureGain = f.GestureGain
	}
	if f.CursorMode != "" {
		cfg.CursorMode = f.CursorMode
	}
	if f.PageSize > 0 {
		cfg.PageSize = f.PageSize
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `ratecal config init`.
func Template() File {
	return File{
		APIKey:        "",
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Rate:          DefaultRate,
		BaseURL:       DefaultBaseURL,
		CellWidth:     DefaultCellWidth,
		Overscan:      DefaultOverscan,
		FrameInterval: DefaultFrameInterval.String(),
		GestureGain:   DefaultGestureGain,
		CursorMode:    DefaultCursorMode,
		PageSize:      DefaultPageSize,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
