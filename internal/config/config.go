package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Local struct {
		Path     string `yaml:"path"`
		UserID   string `yaml:"userId"`
		Timezone string `yaml:"timezone"`
	} `yaml:"local"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Sync struct {
		Interval string `yaml:"interval"`
	} `yaml:"sync"`
	Live struct {
		LockTTL string  `yaml:"lockTTL"`
		Rate    float64 `yaml:"rate"`
		Burst   int     `yaml:"burst"`
	} `yaml:"live"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields the defaults so the
// CLI works without any setup.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Local.Path == "" {
		c.Local.Path = DefaultDataPath()
	}
	if c.Live.Rate <= 0 {
		c.Live.Rate = 5
	}
	if c.Live.Burst <= 0 {
		c.Live.Burst = 10
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}
}

// Location returns the time zone that defines a calendar day for the daily
// bonus, falling back to the machine's local zone.
func (c Config) Location() *time.Location {
	if c.Local.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Local.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultDataPath is the SQLite file under the XDG data directory.
func DefaultDataPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "amc-progress.db")
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "amc-progress", "progress.db")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
