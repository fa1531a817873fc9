// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keystore loads and creates the secret that keys audit MACs.
//
// Key Source Priority:
//  1. INTEGRITYLOG_SECRET environment variable, hex encoded
//  2. Key file (hex text) with 0600 or stricter permissions
//  3. None: the log falls back to the public padding key
//
// A set but invalid environment variable is an error; it never falls through
// to the file.
package keystore

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/integritylog/internal/logging"
	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SecretEnvVar holds a hex-encoded secret.
const SecretEnvVar = "INTEGRITYLOG_SECRET"

const (
	// DefaultKeySize matches the HMAC block size, so generated keys are used
	// without padding.
	DefaultKeySize = audit.KeySize

	// MinKeySize is the smallest size Generate accepts.
	MinKeySize = 16

	// RecommendedKeySize is the size below which loaded secrets are reported
	// as weak.
	RecommendedKeySize = 32

	// SaltSize is the salt length for DeriveFromPassphrase.
	SaltSize = 16

	// PBKDF2Iterations follows the current OWASP guidance for PBKDF2-SHA256.
	PBKDF2Iterations = 600000
)

// Source identifies where a secret came from.
type Source string

const (
	SourceEnv  Source = "environment"
	SourceFile Source = "file"
	SourceNone Source = "none"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrKeyFilePermissions is returned when a key file is readable by
	// group or others.
	ErrKeyFilePermissions = errors.New("key file has insecure permissions - must be 0600 or more restrictive")

	// ErrKeyExists is returned by Generate when the target already exists.
	ErrKeyExists = errors.New("key file already exists")

	// ErrInvalidKey is returned for undecodable or empty key material.
	ErrInvalidKey = errors.New("invalid key material")
)

// =============================================================================
// LOADING
// =============================================================================

// Load returns the configured secret. keyFile may be empty. When no source
// is configured it returns (nil, SourceNone, nil).
func Load(keyFile string) (*audit.Secret, Source, error) {
	if raw := os.Getenv(SecretEnvVar); raw != "" {
		secret, err := parseHex([]byte(raw))
		if err != nil {
			return nil, SourceNone, fmt.Errorf("%s: %w", SecretEnvVar, err)
		}
		warnIfShort(secret, SourceEnv)
		return secret, SourceEnv, nil
	}

	if keyFile != "" {
		secret, err := LoadFile(keyFile)
		if err != nil {
			return nil, SourceNone, err
		}
		warnIfShort(secret, SourceFile)
		return secret, SourceFile, nil
	}

	return nil, SourceNone, nil
}

// LoadFile reads a hex key file after checking its permissions.
func LoadFile(path string) (*audit.Secret, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("key file not found: %w", err)
	}
	if err := checkFilePermissions(info, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer zero(data)

	secret, err := parseHex(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return secret, nil
}

func parseHex(text []byte) (*audit.Secret, error) {
	text = bytes.TrimSpace(text)
	raw := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(raw, text)
	if err != nil {
		zero(raw)
		return nil, fmt.Errorf("%w: secret must be hex-encoded", ErrInvalidKey)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: secret is empty", ErrInvalidKey)
	}
	// NewSecret zeroes raw.
	return audit.NewSecret(raw[:n])
}

// checkFilePermissions rejects key files with any group or other bits set.
// Windows has no mode bits to check.
func checkFilePermissions(info os.FileInfo, path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("%w: file %s has mode %o, should be 0600 or 0400", ErrKeyFilePermissions, path, mode)
	}
	return nil
}

func warnIfShort(secret *audit.Secret, source Source) {
	if secret.Len() < RecommendedKeySize {
		logging.Warn().
			Str("source", string(source)).
			Int("bytes", secret.Len()).
			Int("recommended", RecommendedKeySize).
			Msg("audit secret is shorter than recommended")
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate writes size random bytes, hex encoded, to path and returns them
// as a Secret. It refuses to overwrite an existing file.
func Generate(path string, size int) (*audit.Secret, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: key size %d is below minimum %d", ErrInvalidKey, size, MinKeySize)
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return Save(path, raw)
}

// Save writes raw to path as hex and returns it as a Secret. raw is zeroed.
// It refuses to overwrite an existing file.
func Save(path string, raw []byte) (*audit.Secret, error) {
	defer zero(raw)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}

	encoded := make([]byte, hex.EncodedLen(len(raw))+1)
	hex.Encode(encoded, raw)
	encoded[len(encoded)-1] = '\n'
	defer zero(encoded)

	if err := util.AtomicWriteFile(path, encoded, util.PrivateFilePerm, util.PrivateDirPerm); err != nil {
		return nil, fmt.Errorf("failed to save key: %w", err)
	}

	return audit.NewSecret(raw)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveFromPassphrase stretches a passphrase into DefaultKeySize bytes with
// PBKDF2-SHA256. The same passphrase and salt always yield the same key.
func DeriveFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: passphrase is empty", ErrInvalidKey)
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("%w: salt must be at least 8 bytes", ErrInvalidKey)
	}
	return pbkdf2.Key(passphrase, salt, PBKDF2Iterations, DefaultKeySize, sha256.New), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
