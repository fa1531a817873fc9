// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// =============================================================================
// SEALED SECRET
// =============================================================================

// ErrSecretDestroyed is returned by Secret.Use after Destroy.
var ErrSecretDestroyed = errors.New("audit: secret destroyed")

// Process-wide sealing key. It never leaves this process and is regenerated
// on every start, so sealed secrets are only meaningful in memory.
var (
	sealOnce sync.Once
	sealAEAD cipher.AEAD
	sealErr  error
)

func sealer() (cipher.AEAD, error) {
	sealOnce.Do(func() {
		key := make([]byte, chacha20poly1305.KeySize)
		lockMemory(key)
		defer func() {
			zeroBytes(key)
			unlockMemory(key)
		}()
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			sealErr = fmt.Errorf("failed to generate sealing key: %w", err)
			return
		}
		sealAEAD, sealErr = chacha20poly1305.NewX(key)
	})
	return sealAEAD, sealErr
}

// Secret holds HMAC keying material encrypted in memory. The plaintext is only
// reachable through Use. A nil *Secret means "no secret configured".
type Secret struct {
	mu          sync.RWMutex
	nonce       []byte
	sealed      []byte
	length      int
	fingerprint string
	destroyed   bool
}

// NewSecret seals raw and zeroes it. raw must not be empty.
func NewSecret(raw []byte) (*Secret, error) {
	defer zeroBytes(raw)

	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: secret is empty", ErrInvalidArgument)
	}

	aead, err := sealer()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sum := sha256.Sum256(raw)
	return &Secret{
		nonce:       nonce,
		sealed:      aead.Seal(nil, nonce, raw, nil),
		length:      len(raw),
		fingerprint: hex.EncodeToString(sum[:4]),
	}, nil
}

// SecretFromHex decodes a hex-encoded secret and seals it.
func SecretFromHex(s string) (*Secret, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: secret must be hex-encoded: %v", ErrInvalidArgument, err)
	}
	return NewSecret(raw)
}

// Use exposes the plaintext secret to fn. The buffer passed to fn is zeroed
// when fn returns, including when it returns an error or panics; fn must not
// retain it. On a nil Secret fn receives nil.
func (s *Secret) Use(fn func(raw []byte) error) error {
	if s == nil {
		return fn(nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrSecretDestroyed
	}

	aead, err := sealer()
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(s.sealed))
	lockMemory(buf[:cap(buf)])
	defer func() {
		zeroBytes(buf[:cap(buf)])
		unlockMemory(buf[:cap(buf)])
	}()

	plain, err := aead.Open(buf, s.nonce, s.sealed, nil)
	if err != nil {
		return fmt.Errorf("failed to unseal secret: %w", err)
	}
	return fn(plain)
}

// Len returns the length of the plaintext secret in bytes.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return s.length
}

// Fingerprint identifies the secret without revealing it: the first four
// bytes of its SHA-256, hex-encoded.
func (s *Secret) Fingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}

// Destroy zeroes the sealed form. Later calls to Use fail.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	zeroBytes(s.sealed)
	zeroBytes(s.nonce)
	s.destroyed = true
}

// zeroBytes overwrites b with zeros.
// SECURITY: key material must not survive in memory after use.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
