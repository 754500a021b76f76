package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Engine.BucketWidthMinutes != 30 {
		t.Errorf("bucket_width_minutes = %d, want 30", cfg.Engine.BucketWidthMinutes)
	}
	if cfg.Engine.CellEdgeMetres != 100.0 {
		t.Errorf("cell_edge_metres = %f, want 100", cfg.Engine.CellEdgeMetres)
	}
	if cfg.Engine.MinSamples != 2 {
		t.Errorf("min_samples = %d, want 2", cfg.Engine.MinSamples)
	}
	if cfg.Engine.BaselineSpeedKmh != 30.0 {
		t.Errorf("baseline_speed_kmh = %f, want 30", cfg.Engine.BaselineSpeedKmh)
	}
	if cfg.Engine.RecentWindow != 30*time.Minute {
		t.Errorf("recent_window = %s, want 30m", cfg.Engine.RecentWindow)
	}
	wantWeights := []float64{0.8, 0.6, 0.4, 0.2}
	if len(cfg.Engine.RecencyWeights) != len(wantWeights) {
		t.Fatalf("recency_weights = %v, want %v", cfg.Engine.RecencyWeights, wantWeights)
	}
	for i, w := range wantWeights {
		if cfg.Engine.RecencyWeights[i] != w {
			t.Errorf("recency_weights[%d] = %f, want %f", i, cfg.Engine.RecencyWeights[i], w)
		}
	}
	if len(cfg.Engine.RecencyThresholdsMin) != 3 {
		t.Errorf("recency_thresholds_min = %v, want 3 entries", cfg.Engine.RecencyThresholdsMin)
	}
	if len(cfg.Engine.RushHours) != 7 || len(cfg.Engine.NightHours) != 8 {
		t.Errorf("rush/night hours = %v / %v, want 7 and 8 entries",
			cfg.Engine.RushHours, cfg.Engine.NightHours)
	}
	if len(cfg.Calendar.Holidays) != 9 {
		t.Errorf("expected 9 default holidays, got %d", len(cfg.Calendar.Holidays))
	}
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q, want default :8080", cfg.HTTP.Addr)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
http:
  addr: ":9090"
engine:
  bucket_width_minutes: 15
  base_hourly_rate: 40.0
calendar:
  holidays:
    - "01-01"
    - "12-25"
`
	tmpfile, err := os.CreateTemp("", "roam-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http.addr = %q, want :9090", cfg.HTTP.Addr)
	}
	if cfg.Engine.BucketWidthMinutes != 15 {
		t.Errorf("bucket_width_minutes = %d, want 15", cfg.Engine.BucketWidthMinutes)
	}
	if cfg.Engine.BaseHourlyRate != 40.0 {
		t.Errorf("base_hourly_rate = %f, want 40", cfg.Engine.BaseHourlyRate)
	}
	// Untouched knobs keep their defaults.
	if cfg.Engine.MinSamples != 2 {
		t.Errorf("min_samples = %d, want default 2", cfg.Engine.MinSamples)
	}
	if len(cfg.Calendar.Holidays) != 2 {
		t.Errorf("expected 2 holidays from file, got %d", len(cfg.Calendar.Holidays))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad bucket width", func(c *Config) { c.Engine.BucketWidthMinutes = 20 }},
		{"zero cell edge", func(c *Config) { c.Engine.CellEdgeMetres = 0 }},
		{"negative radius", func(c *Config) { c.Engine.OperatingRadiusKm = -1 }},
		{"zero min samples", func(c *Config) { c.Engine.MinSamples = 0 }},
		{"inverted duration window", func(c *Config) { c.Engine.MinObsDurationSec = 20 }},
		{"inverted speed window", func(c *Config) { c.Engine.MinSpeedKmh = 300 }},
		{"weight/threshold length mismatch", func(c *Config) { c.Engine.RecencyWeights = []float64{0.8, 0.2} }},
		{"weight out of range", func(c *Config) { c.Engine.RecencyWeights = []float64{0.8, 0.6, 0.4, 1.2} }},
		{"non-ascending thresholds", func(c *Config) { c.Engine.RecencyThresholdsMin = []float64{15, 15, 30} }},
		{"rush hour out of range", func(c *Config) { c.Engine.RushHours = []int{7, 24} }},
		{"bad holiday entry", func(c *Config) { c.Calendar.Holidays = []string{"13-40"} }},
		{"garbage holiday entry", func(c *Config) { c.Calendar.Holidays = []string{"xmas"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted invalid config")
			}
		})
	}
}

func TestHolidayDates(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dates, err := cfg.HolidayDates()
	if err != nil {
		t.Fatalf("HolidayDates: %v", err)
	}
	if len(dates) != 9 {
		t.Fatalf("expected 9 parsed holidays, got %d", len(dates))
	}
	if dates[0] != [2]int{1, 1} {
		t.Errorf("first holiday = %v, want [1 1]", dates[0])
	}
	if dates[8] != [2]int{12, 26} {
		t.Errorf("last holiday = %v, want [12 26]", dates[8])
	}
}
