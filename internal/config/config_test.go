package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yamlContent := []byte(`
bridge:
  base_url: "http://127.0.0.1:9000"
  tick_ws_url: "ws://127.0.0.1:9000/ws/tick"
  exec_ws_url: "ws://127.0.0.1:9000/ws/exec"
  api_throttle: 250ms
  condition: "momentum"
  screen: "2000"
  tick_unit: 3
storage:
  data_dir: "/tmp/tesfeed/data"
  sqlite_path: "/tmp/tesfeed/mirror.db"
  mirror: "sqlite"
logging:
  level: "debug"
  format: "json"
stress:
  interval: 40ms
  batch: 10
history:
  stop_time: "20200101090000"
  min_rows: 30
`)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	// Clear any environment overrides that might interfere.
	for _, k := range []string{"FEED_BRIDGE_URL", "FEED_CONDITION", "FEED_CONDITION_INDEX", "FEED_CODES", "FEED_SCREEN", "FEED_TICK_UNIT", "FEED_THROTTLE_MS", "FEED_DIAG", "DATA_DIR", "SQLITE_PATH", "FEED_MIRROR", "LOG_LEVEL", "FEED_STRESS", "FEED_STRESS_INTERVAL_MS", "FEED_STRESS_BATCH"} {
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Bridge.BaseURL != "http://127.0.0.1:9000" {
		t.Errorf("Bridge.BaseURL = %q", cfg.Bridge.BaseURL)
	}
	if cfg.Bridge.APIThrottle != 250*time.Millisecond {
		t.Errorf("Bridge.APIThrottle = %v, want 250ms", cfg.Bridge.APIThrottle)
	}
	if cfg.Bridge.Condition != "momentum" {
		t.Errorf("Bridge.Condition = %q", cfg.Bridge.Condition)
	}
	if cfg.Bridge.Screen != "2000" {
		t.Errorf("Bridge.Screen = %q, want 2000", cfg.Bridge.Screen)
	}
	if cfg.Bridge.TickUnit != 3 {
		t.Errorf("Bridge.TickUnit = %d, want 3", cfg.Bridge.TickUnit)
	}
	if cfg.Bridge.ConditionIndex != -1 {
		t.Errorf("Bridge.ConditionIndex = %d, want -1 when unset", cfg.Bridge.ConditionIndex)
	}
	if cfg.Storage.DataDir != "/tmp/tesfeed/data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.Mirror != "sqlite" {
		t.Errorf("Storage.Mirror = %q, want sqlite", cfg.Storage.Mirror)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Stress.Interval != 40*time.Millisecond {
		t.Errorf("Stress.Interval = %v, want 40ms", cfg.Stress.Interval)
	}
	if cfg.Stress.Batch != 10 {
		t.Errorf("Stress.Batch = %d, want 10", cfg.Stress.Batch)
	}
	if cfg.History.StopTime != "20200101090000" {
		t.Errorf("History.StopTime = %q", cfg.History.StopTime)
	}
	if cfg.History.MinRows != 30 {
		t.Errorf("History.MinRows = %d, want 30", cfg.History.MinRows)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
bridge:
  base_url: "http://yaml-host:8765"
storage:
  data_dir: "/yaml/data"
`)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	for k, v := range map[string]string{
		"FEED_BRIDGE_URL":      "http://env-host:8765",
		"DATA_DIR":             "/env/data",
		"FEED_STRESS_BATCH":    "500",
		"FEED_CODES":           "005930, 000660,,A0055501",
		"FEED_SCREEN":          "5500",
		"FEED_TICK_UNIT":       "5",
		"FEED_THROTTLE_MS":     "150",
		"FEED_CONDITION_INDEX": "0",
		"FEED_DIAG":            "1",
	} {
		os.Setenv(k, v)
		defer os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Bridge.BaseURL != "http://env-host:8765" {
		t.Errorf("Bridge.BaseURL = %q, want env override", cfg.Bridge.BaseURL)
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	// Out-of-range batch sizes clamp to the maximum.
	if cfg.Stress.Batch != 100 {
		t.Errorf("Stress.Batch = %d, want clamp to 100", cfg.Stress.Batch)
	}
	want := []string{"005930", "000660", "A0055501"}
	if len(cfg.Bridge.Codes) != len(want) {
		t.Fatalf("Bridge.Codes = %v, want %v", cfg.Bridge.Codes, want)
	}
	for i, c := range want {
		if cfg.Bridge.Codes[i] != c {
			t.Errorf("Bridge.Codes[%d] = %q, want %q", i, cfg.Bridge.Codes[i], c)
		}
	}
	if cfg.Bridge.Screen != "5500" {
		t.Errorf("Bridge.Screen = %q, want env override", cfg.Bridge.Screen)
	}
	if cfg.Bridge.TickUnit != 5 {
		t.Errorf("Bridge.TickUnit = %d, want env override", cfg.Bridge.TickUnit)
	}
	if cfg.Bridge.APIThrottle != 150*time.Millisecond {
		t.Errorf("Bridge.APIThrottle = %v, want 150ms from env", cfg.Bridge.APIThrottle)
	}
	// Index zero is a valid screening formula slot.
	if cfg.Bridge.ConditionIndex != 0 {
		t.Errorf("Bridge.ConditionIndex = %d, want 0 from env", cfg.Bridge.ConditionIndex)
	}
	if !cfg.Diag {
		t.Error("Diag not enabled by env override")
	}
}

func TestDefaults(t *testing.T) {
	for _, k := range []string{"FEED_BRIDGE_URL", "FEED_SCREEN", "FEED_TICK_UNIT", "FEED_THROTTLE_MS", "FEED_CONDITION_INDEX", "FEED_DIAG", "DATA_DIR", "LOG_LEVEL", "FEED_STRESS_INTERVAL_MS", "FEED_STRESS_BATCH"} {
		os.Unsetenv(k)
	}

	cfg := Default()

	if cfg.Bridge.BaseURL != "http://127.0.0.1:8765" {
		t.Errorf("Bridge.BaseURL default = %q", cfg.Bridge.BaseURL)
	}
	if cfg.Bridge.APIThrottle != 300*time.Millisecond {
		t.Errorf("Bridge.APIThrottle default = %v", cfg.Bridge.APIThrottle)
	}
	if cfg.Bridge.Screen != "1000" {
		t.Errorf("Bridge.Screen default = %q", cfg.Bridge.Screen)
	}
	if cfg.Bridge.TickUnit != 1 {
		t.Errorf("Bridge.TickUnit default = %d", cfg.Bridge.TickUnit)
	}
	if cfg.Bridge.ConditionIndex != -1 {
		t.Errorf("Bridge.ConditionIndex default = %d, want -1", cfg.Bridge.ConditionIndex)
	}
	if cfg.Diag {
		t.Error("Diag default should be off")
	}
	if cfg.Stress.Interval != 50*time.Millisecond {
		t.Errorf("Stress.Interval default = %v", cfg.Stress.Interval)
	}
	if cfg.Stress.Batch != 20 {
		t.Errorf("Stress.Batch default = %d", cfg.Stress.Batch)
	}
	if cfg.History.StopTime != "20180101090000" {
		t.Errorf("History.StopTime default = %q", cfg.History.StopTime)
	}
	if cfg.History.MinRows != 50 {
		t.Errorf("History.MinRows default = %d", cfg.History.MinRows)
	}
}
