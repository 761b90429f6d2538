package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend identifiers for persisted state.
const (
	StateBackendFile  = "file"
	StateBackendRedis = "redis"
)

// Config is the full carboncounter configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Backend   BackendConfig   `yaml:"backend"`
	State     StateConfig     `yaml:"state"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
}

// LoggingConfig controls log level and optional file output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// DatasetConfig locates the emissions factor CSV.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// TrackingConfig tunes the fix filter and the engine queue.
type TrackingConfig struct {
	MaxHorizontalAccuracy float64 `yaml:"max_horizontal_accuracy_m"`
	DurationPolicy        string  `yaml:"duration_policy"`
	QueueSize             int     `yaml:"queue_size"`
}

// AggregateConfig selects same-day behavior and the rollover timezone.
type AggregateConfig struct {
	SameDay  string `yaml:"same_day"`
	Timezone string `yaml:"timezone,omitempty"`
}

// BackendConfig points at the leaderboard API.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
}

// StateConfig selects where buffers and the vehicle are persisted.
type StateConfig struct {
	Backend        string `yaml:"backend"`
	File           string `yaml:"file,omitempty"`
	RedisAddr      string `yaml:"redis_addr,omitempty"`
	RedisPassword  string `yaml:"redis_password,omitempty"`
	RedisKeyPrefix string `yaml:"redis_key_prefix,omitempty"`
}

// HistoryConfig enables the Postgres drive log when PostgresURL is set.
type HistoryConfig struct {
	PostgresURL string `yaml:"postgres_url,omitempty"`
}

// ServerConfig configures the HTTP ingest server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// FixesPerSecond caps POST /fixes; 0 disables the limit.
	FixesPerSecond float64 `yaml:"fixes_per_second"`
	FixesBurst     int     `yaml:"fixes_burst"`
}

// New returns a Config populated with defaults.
func New() *Config {
	dir, err := GetConfigDir()
	if err != nil {
		dir = ".carboncounter"
	}
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Dataset: DatasetConfig{Path: filepath.Join(dir, "caremissions.csv")},
		Tracking: TrackingConfig{
			MaxHorizontalAccuracy: 50,
			DurationPolicy:        "per_sample",
			QueueSize:             256,
		},
		Aggregate: AggregateConfig{SameDay: "overwrite"},
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:5000",
			Timeout:        10 * time.Second,
			LeaderboardTTL: time.Minute,
		},
		State: StateConfig{
			Backend:        StateBackendFile,
			File:           filepath.Join(dir, "state.json"),
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "carboncounter",
		},
		Server: ServerConfig{
			Listen:         ":8080",
			FixesPerSecond: 20,
			FixesBurst:     40,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, unmarshalErr)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnv()
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}
	return cfg, nil
}

// LoadDefault loads config.yaml from the configuration directory.
func LoadDefault() (*Config, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CARBONCOUNTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CARBONCOUNTER_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CARBONCOUNTER_REDIS_ADDR"); v != "" {
		c.State.RedisAddr = v
		c.State.Backend = StateBackendRedis
	}
	if v := os.Getenv("CARBONCOUNTER_POSTGRES_URL"); v != "" {
		c.History.PostgresURL = v
	}
}

// Validate rejects unknown enum values and negative numbers.
func (c *Config) Validate() error {
	var errs []error

	switch c.Tracking.DurationPolicy {
	case "", "per_sample", "since_start":
	default:
		errs = append(errs, fmt.Errorf("tracking.duration_policy: unknown value %q", c.Tracking.DurationPolicy))
	}
	if c.Tracking.MaxHorizontalAccuracy < 0 {
		errs = append(errs, errors.New("tracking.max_horizontal_accuracy_m must not be negative"))
	}
	if c.Tracking.QueueSize < 0 {
		errs = append(errs, errors.New("tracking.queue_size must not be negative"))
	}

	switch c.Aggregate.SameDay {
	case "", "overwrite", "accumulate":
	default:
		errs = append(errs, fmt.Errorf("aggregate.same_day: unknown value %q", c.Aggregate.SameDay))
	}
	if c.Aggregate.Timezone != "" {
		if _, err := time.LoadLocation(c.Aggregate.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("aggregate.timezone: %w", err))
		}
	}

	if c.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.timeout must not be negative"))
	}
	if c.Backend.LeaderboardTTL < 0 {
		errs = append(errs, errors.New("backend.leaderboard_ttl must not be negative"))
	}

	if c.Server.FixesPerSecond < 0 || c.Server.FixesBurst < 0 {
		errs = append(errs, errors.New("server.fixes_per_second and server.fixes_burst must not be negative"))
	}

	switch strings.ToLower(c.State.Backend) {
	case "", StateBackendFile, StateBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("state.backend: unknown value %q", c.State.Backend))
	}

	return errors.Join(errs...)
}

// Location returns the configured rollover timezone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Aggregate.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Aggregate.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o700); mkdirErr != nil {
		return fmt.Errorf("creating config directory: %w", mkdirErr)
	}
	if writeErr := os.WriteFile(path, data, 0o600); writeErr != nil {
		return fmt.Errorf("writing config %s: %w", path, writeErr)
	}
	return nil
}
