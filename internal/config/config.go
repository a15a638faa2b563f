// Package config loads the application configuration from a YAML file
// with environment-variable expansion, so secrets like the vendor API
// base URL can come from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Vendor  VendorConfig  `mapstructure:"vendor"`
	Plants  PlantsConfig  `mapstructure:"plants"`
	Poll    PollConfig    `mapstructure:"poll"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"`       // requests per second
	RateLimitBurst int     `mapstructure:"rate_limit_burst"` // burst size
}

// VendorConfig describes the external telemetry export endpoint.
type VendorConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	LatestTimeoutSecs int     `mapstructure:"latest_timeout_seconds"`
	SeriesTimeoutSecs int     `mapstructure:"series_timeout_seconds"`
	SeriesRowLimit    int     `mapstructure:"series_row_limit"`
	RateLimit         float64 `mapstructure:"rate_limit"`
	RateLimitBurst    int     `mapstructure:"rate_limit_burst"`
}

// PlantConfig identifies one inverter at the vendor.
type PlantConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
}

type PlantsConfig struct {
	GroundFloor PlantConfig `mapstructure:"ground_floor"`
	FirstFloor  PlantConfig `mapstructure:"first_floor"`
}

type PollConfig struct {
	IntervalSeconds int  `mapstructure:"interval_seconds"`
	Enabled         bool `mapstructure:"enabled"`
}

type CacheConfig struct {
	DaySeriesSize int `mapstructure:"day_series_size"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	File       string `mapstructure:"file"`   // empty = stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file, expanding $VAR references from
// the environment before unmarshaling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Round-trip through YAML so scalar types survive env expansion.
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}
	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("vendor.base_url", "https://dair.drd-home.online")
	v.SetDefault("vendor.latest_timeout_seconds", 15)
	v.SetDefault("vendor.series_timeout_seconds", 20)
	v.SetDefault("vendor.series_row_limit", 1000)
	v.SetDefault("vendor.rate_limit", 2.0)
	v.SetDefault("vendor.rate_limit_burst", 4)

	v.SetDefault("plants.ground_floor.id", "11160008309715425")
	v.SetDefault("plants.ground_floor.label", "Ground_Floor")
	v.SetDefault("plants.first_floor.id", "11160032281678305")
	v.SetDefault("plants.first_floor.label", "First_Floor")

	v.SetDefault("poll.interval_seconds", 30)
	v.SetDefault("poll.enabled", true)

	v.SetDefault("cache.day_series_size", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
}

// PlantLabels returns the static plant-ID to label table used by the
// normalizer to recover a missing label.
func (c *Config) PlantLabels() map[string]string {
	return map[string]string{
		c.Plants.GroundFloor.ID: c.Plants.GroundFloor.Label,
		c.Plants.FirstFloor.ID:  c.Plants.FirstFloor.Label,
	}
}
