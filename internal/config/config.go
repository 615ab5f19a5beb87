// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/storage"
)

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a string ("300ms", "15s") in TOML.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration { return Duration{d} }

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigrun-stream configuration.
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Providers ProvidersConfig `toml:"providers"`
	Timing    TimingConfig    `toml:"timing"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
}

// BackendConfig locates the chat backend.
type BackendConfig struct {
	URL        string   `toml:"url"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// ProvidersConfig holds the default selection and per-provider fallback budgets.
type ProvidersConfig struct {
	DefaultProvider string   `toml:"default_provider"`
	DefaultModel    string   `toml:"default_model"`
	LocalTimeout    Duration `toml:"local_timeout"`
	BuiltinTimeout  Duration `toml:"builtin_timeout"`
	OtherTimeout    Duration `toml:"other_timeout"`
}

// TimingConfig holds the session and status timings.
type TimingConfig struct {
	Debounce           Duration `toml:"debounce"`
	MinVisible         Duration `toml:"min_visible"`
	Cooldown           Duration `toml:"cooldown"`
	BusyNotice         Duration `toml:"busy_notice"`
	StatusRetryDelay   Duration `toml:"status_retry_delay"`
	LocalPollInterval  Duration `toml:"local_poll_interval"`
	RemotePollInterval Duration `toml:"remote_poll_interval"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File enables rotated file output instead of stderr.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:        "http://127.0.0.1:8787",
			Timeout:    D(60 * time.Second),
			MaxRetries: 3,
		},
		Providers: ProvidersConfig{
			DefaultProvider: model.ProviderLocal,
			LocalTimeout:    D(30 * time.Second),
			BuiltinTimeout:  D(15 * time.Second),
			OtherTimeout:    D(20 * time.Second),
		},
		Timing: TimingConfig{
			Debounce:           D(300 * time.Millisecond),
			MinVisible:         D(450 * time.Millisecond),
			Cooldown:           D(60 * time.Second),
			BusyNotice:         D(3 * time.Second),
			StatusRetryDelay:   D(5 * time.Second),
			LocalPollInterval:  D(10 * time.Second),
			RemotePollInterval: D(15 * time.Second),
		},
		Storage: StorageConfig{
			Backend:     storage.BackendFile,
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: storage.DefaultRedisPrefix,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigrun configuration directory path.
// RIGRUN_STREAM_HOME overrides the default ~/.rigrun.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RIGRUN_STREAM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".rigrun"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stream.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.rigrun/stream.toml, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file with full validation.
// Keys the file sets override defaults; unknown keys are an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	defer file.Close()

	fmt.Fprintln(file, "# rigrun-stream configuration file")
	fmt.Fprintln(file, "# Durations use Go syntax: 300ms, 15s, 1m")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := offline.ValidateBaseURL(c.Backend.URL); err != nil {
		errs = append(errs, ValidationError{Field: "backend.url", Message: err.Error()})
	}
	if c.Backend.MaxRetries < 0 || c.Backend.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "backend.max_retries",
			Message: fmt.Sprintf("must be between 0 and 10, got %d", c.Backend.MaxRetries),
		})
	}
	if strings.TrimSpace(c.Providers.DefaultProvider) == "" {
		errs = append(errs, ValidationError{Field: "providers.default_provider", Message: "must not be empty"})
	}

	positive := []struct {
		field string
		d     Duration
	}{
		{"backend.timeout", c.Backend.Timeout},
		{"providers.local_timeout", c.Providers.LocalTimeout},
		{"providers.builtin_timeout", c.Providers.BuiltinTimeout},
		{"providers.other_timeout", c.Providers.OtherTimeout},
		{"timing.debounce", c.Timing.Debounce},
		{"timing.min_visible", c.Timing.MinVisible},
		{"timing.cooldown", c.Timing.Cooldown},
		{"timing.busy_notice", c.Timing.BusyNotice},
		{"timing.status_retry_delay", c.Timing.StatusRetryDelay},
		{"timing.local_poll_interval", c.Timing.LocalPollInterval},
		{"timing.remote_poll_interval", c.Timing.RemotePollInterval},
	}
	for _, p := range positive {
		if p.d.Duration <= 0 {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("must be positive, got %s", p.d.Duration),
			})
		}
	}
	if d := c.Timing.Cooldown.Duration; d > 0 && d < time.Second {
		errs = append(errs, ValidationError{Field: "timing.cooldown", Message: "must be at least 1s"})
	}

	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite, storage.BackendRedis, storage.BackendMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, redis, memory", c.Storage.Backend),
		})
	}
	if c.Storage.Backend == storage.BackendRedis && c.Storage.RedisAddr == "" {
		errs = append(errs, ValidationError{Field: "storage.redis_addr", Message: "required for the redis backend"})
	}
	if c.Storage.RedisDB < 0 {
		errs = append(errs, ValidationError{Field: "storage.redis_db", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Logging.Level),
		})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Logging.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty or zero values with defaults.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Backend.URL == "" {
		c.Backend.URL = def.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	fillDuration(&c.Backend.Timeout, def.Backend.Timeout)

	if c.Providers.DefaultProvider == "" {
		c.Providers.DefaultProvider = def.Providers.DefaultProvider
	}
	fillDuration(&c.Providers.LocalTimeout, def.Providers.LocalTimeout)
	fillDuration(&c.Providers.BuiltinTimeout, def.Providers.BuiltinTimeout)
	fillDuration(&c.Providers.OtherTimeout, def.Providers.OtherTimeout)

	fillDuration(&c.Timing.Debounce, def.Timing.Debounce)
	fillDuration(&c.Timing.MinVisible, def.Timing.MinVisible)
	fillDuration(&c.Timing.Cooldown, def.Timing.Cooldown)
	fillDuration(&c.Timing.BusyNotice, def.Timing.BusyNotice)
	fillDuration(&c.Timing.StatusRetryDelay, def.Timing.StatusRetryDelay)
	fillDuration(&c.Timing.LocalPollInterval, def.Timing.LocalPollInterval)
	fillDuration(&c.Timing.RemotePollInterval, def.Timing.RemotePollInterval)

	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			switch c.Storage.Backend {
			case storage.BackendSQLite:
				c.Storage.Path = filepath.Join(dir, "stream.db")
			case storage.BackendFile:
				c.Storage.Path = filepath.Join(dir, "stream-state.json")
			}
		}
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = def.Storage.RedisPrefix
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = def.Logging.MaxBackups
	}
}

func fillDuration(d *Duration, def Duration) {
	if d.Duration == 0 {
		*d = def
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - RIGRUN_STREAM_URL: overrides backend.url
//   - RIGRUN_STREAM_PROVIDER: overrides providers.default_provider
//   - RIGRUN_STREAM_MODEL: overrides providers.default_model
//   - RIGRUN_STREAM_STORAGE: overrides storage.backend
//   - RIGRUN_STREAM_STORAGE_PATH: overrides storage.path
//   - RIGRUN_STREAM_REDIS_ADDR: overrides storage.redis_addr
//   - RIGRUN_STREAM_REDIS_DB: overrides storage.redis_db
//   - RIGRUN_STREAM_LOG_LEVEL: overrides logging.level
//   - RIGRUN_STREAM_LOG_FORMAT: overrides logging.format
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGRUN_STREAM_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("RIGRUN_STREAM_PROVIDER"); v != "" {
		c.Providers.DefaultProvider = v
	}
	if v := os.Getenv("RIGRUN_STREAM_MODEL"); v != "" {
		c.Providers.DefaultModel = v
	}
	if v := os.Getenv("RIGRUN_STREAM_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("RIGRUN_STREAM_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RIGRUN_STREAM_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("RIGRUN_STREAM_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.RedisDB = db
		}
	}
	if v := os.Getenv("RIGRUN_STREAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RIGRUN_STREAM_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// DefaultSelection returns the selection used until one is stored.
func (c *Config) DefaultSelection() model.Selection {
	return model.Selection{ProviderID: c.Providers.DefaultProvider, ModelID: c.Providers.DefaultModel}
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		Redis: storage.RedisOptions{
			Addr:     c.Storage.RedisAddr,
			Password: c.Storage.RedisPassword,
			DB:       c.Storage.RedisDB,
			Prefix:   c.Storage.RedisPrefix,
		},
	}
}

// =============================================================================
// GET HELPER (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key path
// (e.g., "timing.debounce").
func (c *Config) Get(key string) (interface{}, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTOMLName(v, part)
		if !ok {
			return nil, errors.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if d, ok := field.Interface().(Duration); ok {
				return d.Duration.String(), nil
			}
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, errors.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, errors.Errorf("invalid key: %s", key)
}

func fieldByTOMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag != "" && strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// String renders the config as TOML with the Redis password redacted.
func (c *Config) String() string {
	safe := *c
	if safe.Storage.RedisPassword != "" {
		safe.Storage.RedisPassword = "[REDACTED]"
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
