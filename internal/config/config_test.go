// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/integritylog/internal/notify"
	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/security/keystore"
	"github.com/jeranaias/integritylog/internal/storage"
)

const sampleTOML = `
[log]
name = "payments"
max_entry_length = 4096
serialize_writes = true

[notify]
to = "secops@example.com"
from = "audit@example.com"
smtp_host = "smtp.example.com"
smtp_port = 2525
rate_interval = "5m"
rate_burst = 2

[store]
driver = "sqlite"
path = "/var/lib/integritylog/audit.db"

[logging]
level = "debug"
format = "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Log, cfg.Log)
	assert.Equal(t, storage.DriverFile, cfg.Store.Driver)
	assert.Equal(t, audit.DefaultMaxEntryLength, cfg.Log.MaxEntryLength)
	assert.Equal(t, "console", cfg.Logging.Format, "the CLI logs for humans unless a file asks for json")
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "payments", cfg.Log.Name)
	assert.Equal(t, 4096, cfg.Log.MaxEntryLength)
	assert.True(t, cfg.Log.SerializeWrites)
	assert.Equal(t, "secops@example.com", cfg.Notify.To)
	assert.Equal(t, 2525, cfg.Notify.SMTPPort)
	assert.Equal(t, 5*time.Minute, cfg.Notify.RateInterval)
	assert.Equal(t, storage.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset keys keep their defaults.
	assert.True(t, cfg.Notify.StartTLS)
	assert.Equal(t, notify.DefaultSMTPTimeout, cfg.Notify.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("INTEGRITYLOG_NOTIFY_TO", "oncall@example.com")
	t.Setenv("INTEGRITYLOG_STORE_DRIVER", "file")
	t.Setenv("INTEGRITYLOG_STORE_PATH", "/tmp/audit.jsonl")
	t.Setenv("INTEGRITYLOG_LOG_MAX_ENTRY_LENGTH", "128")
	t.Setenv("INTEGRITYLOG_NOTIFY_RATE_INTERVAL", "30s")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "oncall@example.com", cfg.Notify.To)
	assert.Equal(t, "audit@example.com", cfg.Notify.From, "fields without an override keep file values")
	assert.Equal(t, storage.DriverFile, cfg.Store.Driver)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.Store.Path)
	assert.Equal(t, 128, cfg.Log.MaxEntryLength)
	assert.Equal(t, 30*time.Second, cfg.Notify.RateInterval)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("INTEGRITYLOG_LOG_MAX_ENTRY_LENGTH", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoad_MalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[log\nname = "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOML")
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.MaxEntryLength = -1
	cfg.Store.Driver = "postgres"
	cfg.Store.Path = " "
	cfg.Notify.To = "not an address"
	cfg.Notify.SMTPHost = "smtp.example.com"
	cfg.Notify.SMTPPort = 70000
	cfg.Notify.RateBurst = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"log.max_entry_length",
		"store.driver",
		"store.path",
		"notify.to",
		"notify.smtp_port",
		"notify.rate_burst",
		"logging.format",
	}, fields)
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTripWithoutPassword(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Notify.SMTPUsername = "mailer"
	cfg.Notify.SMTPPassword = "hunter2"

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Equal(t, "hunter2", cfg.Notify.SMTPPassword, "caller's config is not modified")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	reloaded := Default()
	require.NoError(t, LoadTOML(reloaded, path))
	assert.Equal(t, cfg.Log, reloaded.Log)
	assert.Equal(t, cfg.Store, reloaded.Store)
	assert.Equal(t, cfg.Notify.RateInterval, reloaded.Notify.RateInterval)
	assert.Empty(t, reloaded.Notify.SMTPPassword)
}

// =============================================================================
// WIRING
// =============================================================================

func TestToOptions(t *testing.T) {
	t.Setenv(keystore.SecretEnvVar, "")
	keyPath := filepath.Join(t.TempDir(), "audit.key")
	generated, err := keystore.Generate(keyPath, 32)
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Key.File = keyPath

	opts, source, err := cfg.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, keystore.SourceFile, source)
	assert.Equal(t, generated.Fingerprint(), opts.Secret.Fingerprint())
	assert.Equal(t, "payments", opts.Name)
	assert.Equal(t, 4096, opts.MaxEntryLength)
	assert.Equal(t, "secops@example.com", opts.NotifyTo)
	assert.Equal(t, "audit@example.com", opts.NotifyFrom)
	assert.True(t, opts.SerializeWrites)
	assert.NoError(t, opts.Validate())
}

func TestNotifier(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.Notifier(), "no recipient, no notifier")

	cfg.Notify.To = "ops@example.com"
	cfg.Notify.RateInterval = 0
	assert.IsType(t, notify.LogNotifier{}, cfg.Notifier())

	cfg.Notify.SMTPHost = "smtp.example.com"
	assert.IsType(t, &notify.SMTPNotifier{}, cfg.Notifier())

	cfg.Notify.RateInterval = time.Minute
	assert.IsType(t, &notify.RateLimited{}, cfg.Notifier())
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = storage.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "audit.db")

	store, err := cfg.OpenStore()
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &storage.SQLiteSink{}, store)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsValidChangesOnly(t *testing.T) {
	path := writeConfig(t, "[log]\nname = \"v1\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(c *Config) { changes <- c })
	}()

	// The watcher may not be registered yet; keep rewriting until it sees one.
	waitFor := func(content, wantName string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		for {
			select {
			case c := <-changes:
				if c.Log.Name == wantName {
					return
				}
			case <-tick.C:
				require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			case <-deadline:
				t.Fatalf("no reload with name %q", wantName)
			}
		}
	}

	waitFor("[log]\nname = \"v2\"\n", "v2")

	// An invalid edit is not delivered. Late reloads of v2 may still arrive.
	require.NoError(t, os.WriteFile(path, []byte("[log]\nmax_entry_length = -4\n"), 0600))
	quiet := time.After(300 * time.Millisecond)
drain:
	for {
		select {
		case c := <-changes:
			if c.Log.Name != "v2" {
				t.Fatalf("invalid config delivered: %+v", c.Log)
			}
		case <-quiet:
			break drain
		}
	}

	waitFor("[log]\nname = \"v3\"\n", "v3")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled) || err == nil)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestValidationError_Format(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	assert.Equal(t, "a: bad; b: worse", errs.Error())
	assert.True(t, strings.HasPrefix(ValidateErrors{}.Error(), "no validation"))
}
