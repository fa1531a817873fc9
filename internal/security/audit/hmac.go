// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is the persisted tag format
	"fmt"
	"time"
	"unicode/utf8"
)

// =============================================================================
// KEY DERIVATION
// =============================================================================

const (
	// KeySize is the minimum derived HMAC key length (the SHA-1 block size).
	KeySize = 64

	// MACSize is the length of an HMAC-SHA1 tag.
	MACSize = sha1.Size
)

// KeyPadding fills short secrets up to KeySize and is the whole key when no
// secret is configured. It is public: with no secret the MAC only detects
// accidental corruption.
const KeyPadding = "integrity-log/hmac-sha1/key-padding/0123456789abcdefghijklmnopqr"

// DeriveKey returns the HMAC key for secret:
//   - empty secret: KeyPadding
//   - shorter than KeySize: secret followed by KeyPadding[len(secret):]
//   - otherwise: a copy of secret
//
// The result is a fresh buffer the caller must zero.
func DeriveKey(secret []byte) []byte {
	if len(secret) >= KeySize {
		key := make([]byte, len(secret))
		copy(key, secret)
		return key
	}
	key := make([]byte, KeySize)
	n := copy(key, secret)
	copy(key[n:], KeyPadding[n:])
	return key
}

// =============================================================================
// MAC
// =============================================================================

// ComputeMAC returns HMAC-SHA1(key, timestamp || message).
func ComputeMAC(key []byte, timestamp [8]byte, message []byte) [MACSize]byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(timestamp[:])
	mac.Write(message)

	var out [MACSize]byte
	copy(out[:], mac.Sum(nil))
	mac.Reset()
	return out
}

// macWithSecret resolves the key from secret inside a scoped acquisition and
// computes the tag. Both the raw secret and the derived key are zeroed
// before returning.
func macWithSecret(secret *Secret, timestamp [8]byte, message []byte) ([MACSize]byte, error) {
	var sum [MACSize]byte
	err := secret.Use(func(raw []byte) error {
		key := DeriveKey(raw)
		defer zeroBytes(key)
		sum = ComputeMAC(key, timestamp, message)
		return nil
	})
	return sum, err
}

// =============================================================================
// SEALED RECORD
// =============================================================================

// SealedRecord is what a Sink persists. All four fields must be recoverable
// byte-exact for Verify to work.
type SealedRecord struct {
	Category  Category
	Timestamp [8]byte
	MAC       [MACSize]byte
	Message   []byte
}

// Time decodes the record timestamp.
func (r SealedRecord) Time() time.Time {
	return DecodeTimestamp(r.Timestamp)
}

// Seal binds entry's timestamp and message under the key derived from secret.
// No truncation is applied here.
func Seal(secret *Secret, entry *Entry) (SealedRecord, error) {
	if entry == nil {
		return SealedRecord{}, fmt.Errorf("%w: entry is required", ErrInvalidArgument)
	}

	rec := SealedRecord{
		Category:  entry.Category(),
		Timestamp: EncodeTimestamp(entry.Timestamp()),
		Message:   []byte(entry.Message()),
	}
	sum, err := macWithSecret(secret, rec.Timestamp, rec.Message)
	if err != nil {
		return SealedRecord{}, err
	}
	rec.MAC = sum
	return rec, nil
}

// Verify rebuilds the Entry stored in rec and reports through Entry.Valid
// whether its MAC matches under secret. A record that cannot form an Entry
// returns ErrMalformedRecord.
func Verify(secret *Secret, rec SealedRecord) (*Entry, error) {
	if !rec.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %d", ErrMalformedRecord, uint8(rec.Category))
	}
	if len(rec.Message) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedRecord)
	}
	if !utf8.Valid(rec.Message) {
		return nil, fmt.Errorf("%w: message is not valid UTF-8", ErrMalformedRecord)
	}

	expected, err := macWithSecret(secret, rec.Timestamp, rec.Message)
	if err != nil {
		return nil, err
	}

	return NewEntryBuilder().
		Category(rec.Category).
		Timestamp(rec.Time()).
		Message(string(rec.Message)).
		Valid(hmac.Equal(expected[:], rec.MAC[:])).
		Build()
}
