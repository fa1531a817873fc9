// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"golang.org/x/time/rate"

	"github.com/jeranaias/integritylog/internal/logging"
	"github.com/jeranaias/integritylog/internal/notify"
	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/security/keystore"
	"github.com/jeranaias/integritylog/internal/storage"
	"github.com/jeranaias/integritylog/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INTEGRITYLOG_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete integritylog configuration.
type Config struct {
	Log     LogConfig     `toml:"log" envPrefix:"LOG_"`
	Key     KeyConfig     `toml:"key" envPrefix:"KEY_"`
	Notify  NotifyConfig  `toml:"notify" envPrefix:"NOTIFY_"`
	Store   StoreConfig   `toml:"store" envPrefix:"STORE_"`
	Logging LoggingConfig `toml:"logging" envPrefix:"LOGGING_"`
}

// LogConfig maps onto audit.Options.
type LogConfig struct {
	// Name prefixes notification subjects
	Name string `toml:"name" env:"NAME"`

	// MaxEntryLength caps messages in characters, 0 = unbounded
	MaxEntryLength int `toml:"max_entry_length" env:"MAX_ENTRY_LENGTH"`

	// SerializeWrites delivers records to the store in call order
	SerializeWrites bool `toml:"serialize_writes" env:"SERIALIZE_WRITES"`
}

// KeyConfig locates the MAC secret. INTEGRITYLOG_SECRET still wins over File.
type KeyConfig struct {
	File string `toml:"file" env:"FILE"`
}

// NotifyConfig configures write-failure notifications.
type NotifyConfig struct {
	To   string `toml:"to" env:"TO"`
	From string `toml:"from" env:"FROM"`

	// SMTP settings. Without a host, reports go to the process log.
	SMTPHost     string        `toml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int           `toml:"smtp_port" env:"SMTP_PORT"`
	SMTPUsername string        `toml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword string        `toml:"smtp_password" env:"SMTP_PASSWORD"`
	StartTLS     bool          `toml:"starttls" env:"STARTTLS"`
	Timeout      time.Duration `toml:"timeout" env:"TIMEOUT"`

	// At most RateBurst reports at once, one more per RateInterval.
	// RateInterval 0 disables limiting.
	RateInterval time.Duration `toml:"rate_interval" env:"RATE_INTERVAL"`
	RateBurst    int           `toml:"rate_burst" env:"RATE_BURST"`
}

// StoreConfig selects the sink.
type StoreConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	Path   string `toml:"path" env:"PATH"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
	Caller bool   `toml:"caller" env:"CALLER"`
}

// Default returns the built-in configuration.
func Default() *Config {
	storePath := "audit.jsonl"
	if dir, err := ConfigDir(); err == nil {
		storePath = filepath.Join(dir, "audit.jsonl")
	}

	return &Config{
		Log: LogConfig{
			MaxEntryLength: audit.DefaultMaxEntryLength,
		},
		Notify: NotifyConfig{
			SMTPPort:     587,
			StartTLS:     true,
			Timeout:      notify.DefaultSMTPTimeout,
			RateInterval: time.Minute,
			RateBurst:    3,
		},
		Store: StoreConfig{
			Driver: storage.DriverFile,
			Path:   storePath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns ~/.integritylog.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".integritylog"), nil
}

// DefaultPath returns ~/.integritylog/config.toml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file is not an error; an empty path means defaults
// plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg. Keys that do not map to a field are
// logged, not rejected.
func LoadTOML(cfg *Config, path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		logging.Warn().Str("path", path).Strs("keys", keys).Msg("ignoring unknown config keys")
	}
	return nil
}

// SaveTOML writes cfg to path atomically with 0600 permissions. The SMTP
// password is never written; supply it through the environment.
func SaveTOML(cfg *Config, path string) error {
	out := *cfg
	out.Notify.SMTPPassword = ""

	var buf bytes.Buffer
	buf.WriteString("# integritylog configuration\n")
	fmt.Fprintf(&buf, "# Environment variables (%s*) override these values.\n\n", EnvPrefix)

	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), util.PrivateFilePerm, util.PrivateDirPerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnvOverrides overwrites fields whose INTEGRITYLOG_* variable is set,
// e.g. INTEGRITYLOG_NOTIFY_TO or INTEGRITYLOG_STORE_DRIVER.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
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

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Log.MaxEntryLength < 0 {
		add("log.max_entry_length", "must be >= 0, got %d", c.Log.MaxEntryLength)
	}

	switch strings.ToLower(c.Store.Driver) {
	case storage.DriverFile, storage.DriverSQLite:
	default:
		add("store.driver", "invalid driver '%s', must be one of: file, sqlite", c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		add("store.path", "is required")
	}

	if c.Notify.To != "" {
		if _, err := mail.ParseAddress(c.Notify.To); err != nil {
			add("notify.to", "invalid address '%s'", c.Notify.To)
		}
	}
	if c.Notify.From != "" {
		if _, err := mail.ParseAddress(c.Notify.From); err != nil {
			add("notify.from", "invalid address '%s'", c.Notify.From)
		}
	}
	if c.Notify.SMTPHost != "" {
		if c.Notify.SMTPPort <= 0 || c.Notify.SMTPPort > 65535 {
			add("notify.smtp_port", "must be 1-65535, got %d", c.Notify.SMTPPort)
		}
		if (c.Notify.SMTPUsername == "") != (c.Notify.SMTPPassword == "") {
			add("notify.smtp_username", "username and password must be set together")
		}
	}
	if c.Notify.Timeout < 0 {
		add("notify.timeout", "must be >= 0")
	}
	if c.Notify.RateInterval < 0 {
		add("notify.rate_interval", "must be >= 0")
	}
	if c.Notify.RateInterval > 0 && c.Notify.RateBurst < 1 {
		add("notify.rate_burst", "must be >= 1 when rate_interval is set")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		add("logging.level", "invalid level '%s'", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		add("logging.format", "invalid format '%s', must be json or console", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// ToOptions builds audit options, loading the secret through keystore.
func (c *Config) ToOptions() (audit.Options, keystore.Source, error) {
	secret, source, err := keystore.Load(c.Key.File)
	if err != nil {
		return audit.Options{}, keystore.SourceNone, fmt.Errorf("failed to load audit secret: %w", err)
	}

	return audit.Options{
		NotifyTo:        c.Notify.To,
		NotifyFrom:      c.Notify.From,
		Secret:          secret,
		MaxEntryLength:  c.Log.MaxEntryLength,
		Name:            c.Log.Name,
		SerializeWrites: c.Log.SerializeWrites,
	}, source, nil
}

// Notifier builds the failure notifier, or nil when notify.to is unset.
func (c *Config) Notifier() audit.Notifier {
	if c.Notify.To == "" {
		return nil
	}

	var n audit.Notifier = notify.LogNotifier{}
	if c.Notify.SMTPHost != "" {
		n = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     c.Notify.SMTPHost,
			Port:     c.Notify.SMTPPort,
			Username: c.Notify.SMTPUsername,
			Password: c.Notify.SMTPPassword,
			StartTLS: c.Notify.StartTLS,
			Timeout:  c.Notify.Timeout,
		})
	}

	if c.Notify.RateInterval > 0 {
		n = notify.NewRateLimited(n, rate.Every(c.Notify.RateInterval), c.Notify.RateBurst)
	}
	return n
}

// OpenStore opens the configured store.
func (c *Config) OpenStore() (storage.Store, error) {
	return storage.Open(c.Store.Driver, c.Store.Path)
}

// LoggerConfig converts the [logging] section.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Caller: c.Logging.Caller,
	}
}
