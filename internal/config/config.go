package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tesfeed adapter.
type Config struct {
	Bridge  Bridge        `yaml:"bridge"`
	Storage Storage       `yaml:"storage"`
	Logging Logging       `yaml:"logging"`
	Stress  StressConfig  `yaml:"stress"`
	History HistoryConfig `yaml:"history"`
	Diag    bool          `yaml:"diag"`
}

// Bridge holds endpoints and pacing for the broker bridge server. Codes
// takes priority over ConditionIndex, which takes priority over Condition.
// ConditionIndex is -1 when unset; 0 is a valid index.
type Bridge struct {
	BaseURL        string        `yaml:"base_url"`
	TickWSURL      string        `yaml:"tick_ws_url"`
	ExecWSURL      string        `yaml:"exec_ws_url"`
	APIThrottle    time.Duration `yaml:"api_throttle"`
	Condition      string        `yaml:"condition"`
	ConditionIndex int           `yaml:"condition_index"`
	Codes          []string      `yaml:"codes"`
	Screen         string        `yaml:"screen"`
	TickUnit       int           `yaml:"tick_unit"`
}

// Storage holds paths and connection strings for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Mirror      string `yaml:"mirror"` // "sqlite", "postgres" or "" to disable
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StressConfig controls the synthetic tick generator used off market hours.
type StressConfig struct {
	Override string        `yaml:"override"` // "1" forces on, "0" forces off
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

// HistoryConfig controls the minute-candle backfill.
type HistoryConfig struct {
	StopTime string `yaml:"stop_time"`
	MinRows  int    `yaml:"min_rows"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with every field at its default value,
// with environment overrides applied. Used when no config file is given.
func Default() *Config {
	cfg := newConfig()
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// newConfig pre-sets fields whose zero value is a legal setting, so YAML and
// the environment can still tell "unset" apart from an explicit zero.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Bridge.ConditionIndex = -1
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEED_BRIDGE_URL"); v != "" {
		cfg.Bridge.BaseURL = v
	}
	if v := os.Getenv("FEED_TICK_WS_URL"); v != "" {
		cfg.Bridge.TickWSURL = v
	}
	if v := os.Getenv("FEED_EXEC_WS_URL"); v != "" {
		cfg.Bridge.ExecWSURL = v
	}
	if v := os.Getenv("FEED_CONDITION"); v != "" {
		cfg.Bridge.Condition = v
	}
	if v := os.Getenv("FEED_CONDITION_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Bridge.ConditionIndex = n
		}
	}
	if v := os.Getenv("FEED_SCREEN"); v != "" {
		cfg.Bridge.Screen = v
	}
	if v := os.Getenv("FEED_TICK_UNIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Bridge.TickUnit = n
		}
	}
	if v := os.Getenv("FEED_THROTTLE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Bridge.APIThrottle = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FEED_CODES"); v != "" {
		var codes []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
		cfg.Bridge.Codes = codes
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("FEED_MIRROR"); v != "" {
		cfg.Storage.Mirror = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("FEED_STRESS"); v != "" {
		cfg.Stress.Override = v
	}
	if v := os.Getenv("FEED_STRESS_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Stress.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FEED_STRESS_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stress.Batch = n
		}
	}

	if v := os.Getenv("FEED_CANDLE_STOP"); v != "" {
		cfg.History.StopTime = v
	}

	if v := os.Getenv("FEED_DIAG"); v == "1" || v == "true" {
		cfg.Diag = true
	}
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Bridge.BaseURL == "" {
		cfg.Bridge.BaseURL = "http://127.0.0.1:8765"
	}
	if cfg.Bridge.APIThrottle <= 0 {
		cfg.Bridge.APIThrottle = 300 * time.Millisecond
	}
	if cfg.Bridge.Screen == "" {
		cfg.Bridge.Screen = "1000"
	}
	if cfg.Bridge.TickUnit <= 0 {
		cfg.Bridge.TickUnit = 1
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Stress.Interval <= 0 {
		cfg.Stress.Interval = 50 * time.Millisecond
	}
	if cfg.Stress.Interval < 10*time.Millisecond {
		cfg.Stress.Interval = 10 * time.Millisecond
	}
	if cfg.Stress.Batch <= 0 {
		cfg.Stress.Batch = 20
	}
	if cfg.Stress.Batch > 100 {
		cfg.Stress.Batch = 100
	}
	if cfg.History.StopTime == "" {
		cfg.History.StopTime = "20180101090000"
	}
	if cfg.History.MinRows <= 0 {
		cfg.History.MinRows = 50
	}
}
