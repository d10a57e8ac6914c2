package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// HTTP
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage
	DBPath string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Code execution
	Python        string
	ExecTimeout   time.Duration
	ExecMaxOutput int64
	ExecMaxMemory int64
	ExecDisabled  bool
}

// fileConfig is the YAML layout. Every field is optional.
type fileConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	DBPath       string `yaml:"db_path"`
	LogFile      string `yaml:"log_file"`
	LogLevel     string `yaml:"log_level"`
	Exec         struct {
		Python    string `yaml:"python"`
		Timeout   string `yaml:"timeout"`
		MaxOutput string `yaml:"max_output"`
		MaxMemory string `yaml:"max_memory"`
		Disabled  *bool  `yaml:"disabled"`
	} `yaml:"exec"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:          ":5000",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		DBPath:        "pybot_conversations.db",
		LogLevel:      slog.LevelInfo,
		Python:        "python3",
		ExecTimeout:   5 * time.Second,
		ExecMaxOutput: 64 << 10,
		ExecMaxMemory: 256 << 20,
	}
}

// Load reads configuration from the file named by PYBOT_CONFIG (if any) and then
// from environment variables.
func Load() (Config, error) {
	return LoadFile(getEnv("PYBOT_CONFIG", ""))
}

// LoadFile overlays the YAML file at path onto the defaults, then applies the
// environment. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.overlay(data); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) overlay(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Addr != "" {
		c.Addr = f.Addr
	}
	if f.DBPath != "" {
		c.DBPath = f.DBPath
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
	if f.LogLevel != "" {
		c.LogLevel = parseLogLevel(f.LogLevel)
	}
	if f.Exec.Python != "" {
		c.Python = f.Exec.Python
	}
	if f.Exec.Disabled != nil {
		c.ExecDisabled = *f.Exec.Disabled
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"read_timeout", f.ReadTimeout, &c.ReadTimeout},
		{"write_timeout", f.WriteTimeout, &c.WriteTimeout},
		{"exec.timeout", f.Exec.Timeout, &c.ExecTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.raw)
		}
		*d.dst = v
	}
	for _, sz := range []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"exec.max_output", f.Exec.MaxOutput, &c.ExecMaxOutput},
		{"exec.max_memory", f.Exec.MaxMemory, &c.ExecMaxMemory},
	} {
		if sz.raw == "" {
			continue
		}
		n, err := parseSize(sz.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", sz.name, err)
		}
		*sz.dst = n
	}
	return nil
}

// applyEnv overrides c from PYBOT_* variables. Malformed values are rejected the
// same way they are in the YAML file.
func (c *Config) applyEnv() error {
	c.Addr = getEnv("PYBOT_ADDR", c.Addr)
	c.DBPath = getEnv("PYBOT_DB_PATH", c.DBPath)
	c.LogFile = getEnv("PYBOT_LOG_FILE", c.LogFile)
	if v := getEnv("PYBOT_LOG_LEVEL", ""); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	c.Python = getEnv("PYBOT_PYTHON", c.Python)
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"PYBOT_EXEC_TIMEOUT", &c.ExecTimeout},
		{"PYBOT_READ_TIMEOUT", &c.ReadTimeout},
		{"PYBOT_WRITE_TIMEOUT", &c.WriteTimeout},
	} {
		v, err := durationFromEnv(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	for _, sz := range []struct {
		key string
		dst *int64
	}{
		{"PYBOT_EXEC_MAX_OUTPUT", &c.ExecMaxOutput},
		{"PYBOT_EXEC_MAX_MEMORY", &c.ExecMaxMemory},
	} {
		if v := getEnv(sz.key, ""); v != "" {
			n, err := parseSize(v)
			if err != nil {
				return fmt.Errorf("%s: %w", sz.key, err)
			}
			*sz.dst = n
		}
	}
	if v := getEnv("PYBOT_EXEC_DISABLED", ""); v != "" {
		c.ExecDisabled = parseBool(v)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

// parseSize accepts humanized sizes such as "64KiB" or "1MB".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
