// Package config loads runtime settings from the environment and an
// optional YAML schedule file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"pairnet/internal/session"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Checkpoint backends. "store" keeps checkpoints next to the pair events.
const (
	CheckpointsStore = "store"
	CheckpointsRedis = "redis"
)

// Log formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config holds all runtime settings.
type Config struct {
	Storage     string `env:"PAIRNET_STORAGE"      envDefault:"memory"`
	PostgresDSN string `env:"PAIRNET_POSTGRES_DSN"`

	Checkpoints   string `env:"PAIRNET_CHECKPOINTS"    envDefault:"store"`
	RedisAddr     string `env:"PAIRNET_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"PAIRNET_REDIS_PASSWORD"`
	RedisDB       int    `env:"PAIRNET_REDIS_DB"       envDefault:"0"`

	HTTPAddr string `env:"PAIRNET_HTTP_ADDR" envDefault:":8080"`

	SessionStarts    []string      `env:"PAIRNET_SESSION_STARTS"    envSeparator:","`
	ScheduleFile     string        `env:"PAIRNET_SCHEDULE_FILE"`
	Timezone         string        `env:"PAIRNET_TIMEZONE"          envDefault:"UTC"`
	ClassifyInterval time.Duration `env:"PAIRNET_CLASSIFY_INTERVAL" envDefault:"1m"`
	MaxCatchUp       time.Duration `env:"PAIRNET_MAX_CATCH_UP"      envDefault:"168h"`

	LogLevel  string `env:"PAIRNET_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"PAIRNET_LOG_FORMAT" envDefault:"json"`
}

// scheduleFile is the YAML layout of PAIRNET_SCHEDULE_FILE.
//
//	timezone: Asia/Kuala_Lumpur
//	starts: ["06:00", "08:15", "10:30", "12:45", "15:00", "17:15", "19:30", "21:45"]
type scheduleFile struct {
	Timezone string   `yaml:"timezone"`
	Starts   []string `yaml:"starts"`
}

// Load parses the environment, then applies the schedule file if one is set.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.ScheduleFile != "" {
		if err := cfg.applyScheduleFile(cfg.ScheduleFile); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) applyScheduleFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schedule file: %w", err)
	}

	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse schedule file %s: %w", path, err)
	}
	if f.Timezone != "" {
		c.Timezone = f.Timezone
	}
	if len(f.Starts) > 0 {
		c.SessionStarts = f.Starts
	}
	return nil
}

// Validate rejects unknown backends and inconsistent combinations.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("PAIRNET_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}

	switch c.Checkpoints {
	case CheckpointsStore:
	case CheckpointsRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("PAIRNET_REDIS_ADDR is required for redis checkpoints"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint backend %q", c.Checkpoints))
	}

	if c.ClassifyInterval <= 0 {
		errs = append(errs, errors.New("classification interval must be positive"))
	}
	if c.MaxCatchUp <= 0 {
		errs = append(errs, errors.New("max catch-up must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if _, err := c.Schedule(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Schedule builds the session schedule. No configured starts means the
// default schedule.
func (c Config) Schedule() (*session.Schedule, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	starts := c.SessionStarts
	if len(starts) == 0 {
		starts = session.DefaultStarts
	}
	return session.NewSchedule(starts, loc)
}
