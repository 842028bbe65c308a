package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL       = "http://localhost:5000/api"
	DefaultHealthTimeout = 5 * time.Second
	DefaultQueryTimeout  = 60 * time.Second
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		BaseURL       string `json:"base_url"`
		HealthTimeout string `json:"health_timeout"`
		QueryTimeout  string `json:"query_timeout"`
	} `json:"backend"`
	Query struct {
		MaxAttempts int    `json:"max_attempts"`
		RetryDelay  string `json:"retry_delay"`
	} `json:"query"`
	Chat struct {
		Welcome    string `json:"welcome"`
		Transcript bool   `json:"transcript"`
	} `json:"chat"`
	DevServer struct {
		Listen string `json:"listen"`
	} `json:"devserver"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	Discord struct {
		Token  string `json:"token"`
		Prefix string `json:"prefix"`
	} `json:"discord"`
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".samarth"),
		LogLevel: "info",
	}
	cfg.Backend.BaseURL = DefaultBaseURL
	cfg.Backend.HealthTimeout = DefaultHealthTimeout.String()
	cfg.Backend.QueryTimeout = DefaultQueryTimeout.String()
	cfg.Query.MaxAttempts = 1
	cfg.Query.RetryDelay = time.Second.String()
	cfg.DevServer.Listen = "127.0.0.1:5000"
	cfg.Discord.Prefix = "!samarth"
	return cfg
}

// DefaultPath is ~/.samarth/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".samarth", "config.json")
}

// Load reads the config at path, writing defaults first if it does not
// exist. A .env file in the working directory is loaded into the process
// environment before overrides are applied; variables already set win.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	loadDotEnv(".env")
	applyEnv(cfg)

	return cfg, nil
}

// Read returns the settings stored in the file at path, with no
// environment overrides. A missing file is created with defaults.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env", "path", path, "error", err)
	}
}

// applyEnv overrides file values from the environment (highest precedence).
// REACT_APP_API_URL is honored for deployments that share an env file with
// the web client; SAMARTH_API_URL wins when both are set.
func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			o.set(cfg, v)
		}
	}
}

// HealthTimeout parses backend.health_timeout, falling back to the default.
func (c *Config) HealthTimeout() time.Duration {
	return parseDuration(c.Backend.HealthTimeout, DefaultHealthTimeout)
}

// QueryTimeout parses backend.query_timeout, falling back to the default.
func (c *Config) QueryTimeout() time.Duration {
	return parseDuration(c.Backend.QueryTimeout, DefaultQueryTimeout)
}

// RetryDelay parses query.retry_delay, falling back to one second.
func (c *Config) RetryDelay() time.Duration {
	return parseDuration(c.Query.RetryDelay, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in config, using default", "value", s, "default", fallback)
		return fallback
	}
	return d
}

// Validate reports configuration that cannot produce a working client.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.Backend.BaseURL)
	if base == "" {
		return fmt.Errorf("backend.base_url is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("backend.base_url must be an http(s) URL: %q", base)
	}
	if c.Query.MaxAttempts < 0 {
		return fmt.Errorf("query.max_attempts must be >= 0, got %d", c.Query.MaxAttempts)
	}
	return nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeDefaults(path string, cfg *Config) error {
	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat dot-keyed map, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. The file is
// created with defaults if it does not exist; keys missing from an older
// file report their default.
func GetValue(path, key string) (any, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if _, err := Read(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(m)[key]; ok {
		return v, nil
	}
	defaults, err := ListValues(Defaults(), false)
	if err != nil {
		return nil, err
	}
	return defaults[key], nil
}

// SetValue stores value under a dot-separated key in an existing config
// file. Values that parse as JSON (numbers, booleans) are stored typed;
// anything else is stored as a string.
func SetValue(path, key, value string) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	if _, isMap := parsed.(map[string]any); isMap {
		return fmt.Errorf("cannot set %s to an object", key)
	}

	flat := Flatten(m)
	flat[key] = parsed
	out := Unflatten(flat)

	// Reject values that no longer decode into Config.
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(data, Defaults()); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeAtomic(path, data)
}
