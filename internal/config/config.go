// README: Config loader (viper): file + ROAM_* env override + validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Maps     MapsConfig     `mapstructure:"maps"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type MapsConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// CalendarConfig lists fixed-date holidays as "MM-DD" strings.
type CalendarConfig struct {
	Holidays []string `mapstructure:"holidays"`
}

// EngineConfig holds the advisory engine tunables. The blend weights
// and multipliers reproduce the documented defaults but are not
// invariants; hosts may tune them.
type EngineConfig struct {
	CellEdgeMetres     float64 `mapstructure:"cell_edge_metres"`
	BucketWidthMinutes int     `mapstructure:"bucket_width_minutes"`
	OperatingRadiusKm  float64 `mapstructure:"operating_radius_km"`

	// Speed estimator.
	BaselineSpeedKmh     float64 `mapstructure:"baseline_speed_kmh"`
	ProcessNoise         float64 `mapstructure:"process_noise"`
	MeasurementNoise     float64 `mapstructure:"measurement_noise"`
	InitialErrCovariance float64 `mapstructure:"initial_err_covariance"`
	MinObsDurationSec    float64 `mapstructure:"min_obs_duration_sec"`
	MaxObsDurationSec    float64 `mapstructure:"max_obs_duration_sec"`
	MinSpeedKmh          float64 `mapstructure:"min_speed_kmh"`
	MaxSpeedKmh          float64 `mapstructure:"max_speed_kmh"`

	// Earnings prediction fallback.
	MinSamples       int     `mapstructure:"min_samples"`
	CrossClassWeight float64 `mapstructure:"cross_class_weight"`
	NearbyHourBoost  float64 `mapstructure:"nearby_hour_boost"`
	DayWideDiscount  float64 `mapstructure:"day_wide_discount"`
	GlobalDiscount   float64 `mapstructure:"global_discount"`
	DisplayFloor     float64 `mapstructure:"display_floor"`

	// Demand/supply forecast. RecencyWeights[i] applies when travel time
	// is at most RecencyThresholdsMin[i]; the last weight covers
	// everything beyond the final threshold.
	BaseHourlyRate       float64       `mapstructure:"base_hourly_rate"`
	RushMultiplier       float64       `mapstructure:"rush_multiplier"`
	NightMultiplier      float64       `mapstructure:"night_multiplier"`
	RushHours            []int         `mapstructure:"rush_hours"`
	NightHours           []int         `mapstructure:"night_hours"`
	RecencyThresholdsMin []float64     `mapstructure:"recency_thresholds_min"`
	RecencyWeights       []float64     `mapstructure:"recency_weights"`
	RecentWindow         time.Duration `mapstructure:"recent_window"`
	ConfidenceDivisor    float64       `mapstructure:"confidence_divisor"`
	RecentBonus          float64       `mapstructure:"recent_bonus"`
	RatioGain            float64       `mapstructure:"ratio_gain"`
	BoostPerPassenger    float64       `mapstructure:"boost_per_passenger"`
	DefaultHourlyRate    float64       `mapstructure:"default_hourly_rate"`

	// Persistence cadence.
	FlushBatch    int           `mapstructure:"flush_batch"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Load reads configuration from an optional file and the environment.
// A missing file is tolerated so the engine can run on defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ROAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// An explicit path that does not exist surfaces as a plain
			// fs.ErrNotExist, not viper's not-found error.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("maps.api_key", "")

	v.SetDefault("engine.cell_edge_metres", 100.0)
	v.SetDefault("engine.bucket_width_minutes", 30)
	v.SetDefault("engine.operating_radius_km", 5.0)

	v.SetDefault("engine.baseline_speed_kmh", 30.0)
	v.SetDefault("engine.process_noise", 0.05)
	v.SetDefault("engine.measurement_noise", 4.0)
	v.SetDefault("engine.initial_err_covariance", 100.0)
	v.SetDefault("engine.min_obs_duration_sec", 8.0)
	v.SetDefault("engine.max_obs_duration_sec", 15.0)
	v.SetDefault("engine.min_speed_kmh", 0.5)
	v.SetDefault("engine.max_speed_kmh", 200.0)

	v.SetDefault("engine.min_samples", 2)
	v.SetDefault("engine.cross_class_weight", 0.5)
	v.SetDefault("engine.nearby_hour_boost", 1.2)
	v.SetDefault("engine.day_wide_discount", 0.7)
	v.SetDefault("engine.global_discount", 0.3)
	v.SetDefault("engine.display_floor", 1.0)

	v.SetDefault("engine.base_hourly_rate", 25.0)
	v.SetDefault("engine.rush_multiplier", 1.35)
	v.SetDefault("engine.night_multiplier", 0.7)
	v.SetDefault("engine.rush_hours", []int{7, 8, 9, 16, 17, 18, 19})
	v.SetDefault("engine.night_hours", []int{22, 23, 0, 1, 2, 3, 4, 5})
	v.SetDefault("engine.recency_thresholds_min", []float64{5, 15, 30})
	v.SetDefault("engine.recency_weights", []float64{0.8, 0.6, 0.4, 0.2})
	v.SetDefault("engine.recent_window", "30m")
	v.SetDefault("engine.confidence_divisor", 15.0)
	v.SetDefault("engine.recent_bonus", 0.2)
	v.SetDefault("engine.ratio_gain", 0.5)
	v.SetDefault("engine.boost_per_passenger", 0.05)
	v.SetDefault("engine.default_hourly_rate", 20.0)

	v.SetDefault("engine.flush_batch", 50)
	v.SetDefault("engine.flush_interval", "1m")

	v.SetDefault("calendar.holidays", []string{
		"01-01", "01-06", "05-01", "05-03", "08-15",
		"11-01", "11-11", "12-25", "12-26",
	})
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Engine.CellEdgeMetres <= 0 {
		return fmt.Errorf("engine.cell_edge_metres must be positive")
	}
	if w := c.Engine.BucketWidthMinutes; w != 15 && w != 30 {
		return fmt.Errorf("engine.bucket_width_minutes must be 15 or 30")
	}
	if c.Engine.OperatingRadiusKm <= 0 {
		return fmt.Errorf("engine.operating_radius_km must be positive")
	}
	if c.Engine.BaselineSpeedKmh <= 0 {
		return fmt.Errorf("engine.baseline_speed_kmh must be positive")
	}
	if c.Engine.ProcessNoise <= 0 || c.Engine.MeasurementNoise <= 0 {
		return fmt.Errorf("engine noise parameters must be positive")
	}
	if c.Engine.MinObsDurationSec >= c.Engine.MaxObsDurationSec {
		return fmt.Errorf("engine.min_obs_duration_sec must be below max_obs_duration_sec")
	}
	if c.Engine.MinSpeedKmh >= c.Engine.MaxSpeedKmh {
		return fmt.Errorf("engine.min_speed_kmh must be below max_speed_kmh")
	}
	if c.Engine.MinSamples < 1 {
		return fmt.Errorf("engine.min_samples must be at least 1")
	}
	if c.Engine.FlushBatch < 1 {
		return fmt.Errorf("engine.flush_batch must be at least 1")
	}
	if c.Engine.RecentWindow <= 0 {
		return fmt.Errorf("engine.recent_window must be positive")
	}
	if len(c.Engine.RecencyWeights) != len(c.Engine.RecencyThresholdsMin)+1 {
		return fmt.Errorf("engine.recency_weights must have one more entry than recency_thresholds_min")
	}
	for i, th := range c.Engine.RecencyThresholdsMin {
		if th <= 0 || (i > 0 && th <= c.Engine.RecencyThresholdsMin[i-1]) {
			return fmt.Errorf("engine.recency_thresholds_min must be positive and ascending")
		}
	}
	for _, w := range c.Engine.RecencyWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("engine.recency_weights entries must be within [0, 1]")
		}
	}
	for _, h := range append(append([]int{}, c.Engine.RushHours...), c.Engine.NightHours...) {
		if h < 0 || h > 23 {
			return fmt.Errorf("engine rush/night hours must be within [0, 23]")
		}
	}
	for _, h := range c.Calendar.Holidays {
		if _, _, err := parseMonthDay(h); err != nil {
			return err
		}
	}
	return nil
}

// HolidayDates parses the configured "MM-DD" holiday entries into
// (month, day) pairs.
func (c *Config) HolidayDates() ([][2]int, error) {
	out := make([][2]int, 0, len(c.Calendar.Holidays))
	for _, h := range c.Calendar.Holidays {
		m, d, err := parseMonthDay(h)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]int{m, d})
	}
	return out, nil
}

func parseMonthDay(s string) (month, day int, err error) {
	if _, err := fmt.Sscanf(s, "%2d-%2d", &month, &day); err != nil {
		return 0, 0, fmt.Errorf("calendar.holidays entry %q: want MM-DD", s)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("calendar.holidays entry %q out of range", s)
	}
	return month, day, nil
}
