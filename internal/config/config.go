// Package config loads relay and client settings from defaults, an optional
// YAML file, a .env file and the process environment, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the optional YAML config path.
const FileEnv = "ROOMSYNC_CONFIG"

type Config struct {
	Addr           string   `yaml:"addr"`
	DatabasePath   string   `yaml:"databasePath"`
	ContentDir     string   `yaml:"contentDir"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// CompactEvery is the number of logged updates after which a project is
	// rewritten as a single snapshot.
	CompactEvery int `yaml:"compactEvery"`

	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ReadLimit       int64         `yaml:"readLimit"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	PresenceWindow   time.Duration `yaml:"presenceWindow"`
	PresenceInterval time.Duration `yaml:"presenceInterval"`

	GridSize      float64 `yaml:"gridSize"`
	WallThreshold float64 `yaml:"wallThreshold"`

	Debug     bool            `yaml:"debug"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// ProfilingConfig holds configuration for profiling
type ProfilingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

func Default() Config {
	return Config{
		Addr:             ":8080",
		DatabasePath:     "roomsync.db",
		ContentDir:       "content",
		AllowedOrigins:   []string{"*"},
		CompactEvery:     200,
		WriteTimeout:     3 * time.Second,
		ReadLimit:        1 << 20,
		ShutdownTimeout:  10 * time.Second,
		PresenceWindow:   30 * time.Second,
		PresenceInterval: 50 * time.Millisecond,
		GridSize:         0.1,
		WallThreshold:    0.15,
		Profiling:        ProfilingConfig{Port: "42069"},
	}
}

// Load reads .env from the working directory if present, then builds the
// configuration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv applies the YAML file named by ROOMSYNC_CONFIG, if any, and then
// the environment on top of the defaults.
func FromEnv() (Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Addr = getEnv("ROOMSYNC_ADDR", cfg.Addr)
	cfg.DatabasePath = getEnv("ROOMSYNC_DB", cfg.DatabasePath)
	cfg.ContentDir = getEnv("ROOMSYNC_CONTENT", cfg.ContentDir)
	if v := os.Getenv("ROOMSYNC_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.CompactEvery = getEnvInt("ROOMSYNC_COMPACT_EVERY", cfg.CompactEvery)
	cfg.WriteTimeout = getEnvDuration("ROOMSYNC_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ReadLimit = int64(getEnvInt("ROOMSYNC_READ_LIMIT", int(cfg.ReadLimit)))
	cfg.ShutdownTimeout = getEnvDuration("ROOMSYNC_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.PresenceWindow = getEnvDuration("ROOMSYNC_PRESENCE_WINDOW", cfg.PresenceWindow)
	cfg.PresenceInterval = getEnvDuration("ROOMSYNC_PRESENCE_INTERVAL", cfg.PresenceInterval)
	cfg.GridSize = getEnvFloat("ROOMSYNC_GRID_SIZE", cfg.GridSize)
	cfg.WallThreshold = getEnvFloat("ROOMSYNC_WALL_THRESHOLD", cfg.WallThreshold)
	cfg.Debug = getEnvBool("DEBUG_MODE", cfg.Debug)
	cfg.Profiling.Enabled = getEnvBool("ENABLE_PROFILING", cfg.Profiling.Enabled)
	cfg.Profiling.Port = getEnv("PPROF_PORT", cfg.Profiling.Port)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.CompactEvery <= 0 {
		errs = append(errs, fmt.Errorf("compactEvery must be positive, got %d", c.CompactEvery))
	}
	if c.PresenceWindow <= 0 {
		errs = append(errs, fmt.Errorf("presenceWindow must be positive, got %s", c.PresenceWindow))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("readLimit must be positive, got %d", c.ReadLimit))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return result
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
