package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen            = ":5000"
	DefaultMaxEvents         = 1000
	DefaultLimit             = 50
	DefaultMaxBodyBytes      = 64 << 10
	DefaultAllowOrigin       = "*"
	DefaultPermissionsPolicy = "accelerometer=(self), gyroscope=(self), magnetometer=(self), geolocation=(self)"
	DefaultSTUNTimeout       = 3 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultLogMaxSizeMB      = 50
	DefaultLogMaxBackups     = 3
	DefaultLogMaxAgeDays     = 14
)

// Config is the full sensord configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig is used by the ingest HTTP server.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	MaxEvents         int           `yaml:"max_events"`
	DefaultLimit      int           `yaml:"default_limit"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	StaticDir         string        `yaml:"static_dir"`
	AllowOrigin       string        `yaml:"allow_origin"`
	PermissionsPolicy string        `yaml:"permissions_policy"`
	STUNServers       []string      `yaml:"stun_servers"`
	STUNTimeout       time.Duration `yaml:"stun_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	s := cfg.Server
	if s.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if s.MaxEvents <= 0 {
		return fmt.Errorf("server.max_events must be positive, got %d", s.MaxEvents)
	}
	if s.DefaultLimit < 1 || s.DefaultLimit > s.MaxEvents {
		return fmt.Errorf("server.default_limit must be within [1, %d], got %d", s.MaxEvents, s.DefaultLimit)
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if s.StaticDir != "" {
		info, err := os.Stat(s.StaticDir)
		if err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("server.static_dir %s is not a directory", s.StaticDir)
		}
	}
	return nil
}

// ApplyDefaults fills in default values when empty and caps default_limit at
// max_events. Negative max_events is left alone so Validate can reject it.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.MaxEvents == 0 {
		s.MaxEvents = DefaultMaxEvents
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = DefaultLimit
	}
	// max_events may be lowered after a file was loaded with default_limit set.
	if s.MaxEvents > 0 && s.DefaultLimit > s.MaxEvents {
		s.DefaultLimit = s.MaxEvents
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.AllowOrigin == "" {
		s.AllowOrigin = DefaultAllowOrigin
	}
	if s.PermissionsPolicy == "" {
		s.PermissionsPolicy = DefaultPermissionsPolicy
	}
	if s.STUNTimeout == 0 {
		s.STUNTimeout = DefaultSTUNTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	l := &cfg.Log
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = DefaultLogMaxBackups
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

// Environment variables that override file settings.
const (
	EnvListen       = "SENSORD_LISTEN"
	EnvMaxEvents    = "SENSORD_MAX_EVENTS"
	EnvDefaultLimit = "SENSORD_DEFAULT_LIMIT"
	EnvStaticDir    = "SENSORD_STATIC_DIR"
	EnvAllowOrigin  = "SENSORD_ALLOW_ORIGIN"
	EnvSTUNServers  = "SENSORD_STUN_SERVERS"
	EnvLogFile      = "SENSORD_LOG_FILE"
)

// ReadEnvFile parses a dotenv file. A missing file yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return env, nil
}

// Lookup returns a lookup function that checks the process environment
// first and falls back to fileEnv.
func Lookup(fileEnv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
}

// ApplyEnv overrides config fields from environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvListen); ok && v != "" {
		cfg.Server.Listen = v
	}
	if v, ok := lookup(EnvMaxEvents); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxEvents, err)
		}
		cfg.Server.MaxEvents = n
	}
	if v, ok := lookup(EnvDefaultLimit); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDefaultLimit, err)
		}
		cfg.Server.DefaultLimit = n
	}
	if v, ok := lookup(EnvStaticDir); ok && v != "" {
		cfg.Server.StaticDir = v
	}
	if v, ok := lookup(EnvAllowOrigin); ok && v != "" {
		cfg.Server.AllowOrigin = v
	}
	if v, ok := lookup(EnvSTUNServers); ok && v != "" {
		cfg.Server.STUNServers = SplitList(v)
	}
	if v, ok := lookup(EnvLogFile); ok && v != "" {
		cfg.Log.File = v
	}
	return nil
}

// Overrides are command-line settings; non-zero fields win over file and
// environment.
type Overrides struct {
	Listen      string
	MaxEvents   int
	StaticDir   string
	STUNServers []string
}

// Apply copies the set fields into cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.Listen != "" {
		cfg.Server.Listen = o.Listen
	}
	if o.MaxEvents != 0 {
		cfg.Server.MaxEvents = o.MaxEvents
	}
	if o.StaticDir != "" {
		cfg.Server.StaticDir = o.StaticDir
	}
	if len(o.STUNServers) > 0 {
		cfg.Server.STUNServers = o.STUNServers
	}
}

// Resolve builds the effective config: file (optional), then environment,
// then overrides, then defaults, then validation.
func Resolve(path string, lookup func(string) (string, bool), o Overrides) (Config, error) {
	var cfg Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if lookup != nil {
		if err := ApplyEnv(&cfg, lookup); err != nil {
			return Config{}, err
		}
	}
	o.Apply(&cfg)
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
