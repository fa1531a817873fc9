// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"encoding/binary"
	"time"
)

// =============================================================================
// TIMESTAMP ENCODING
// =============================================================================

const (
	// TickDuration is the resolution of the persisted timestamp.
	TickDuration = 100 * time.Nanosecond

	ticksPerSecond = int64(time.Second / TickDuration)

	// unixEpochSeconds is the number of seconds between 0001-01-01T00:00:00Z
	// and 1970-01-01T00:00:00Z.
	unixEpochSeconds int64 = 62135596800
)

// Ticks returns the number of 100ns ticks between 0001-01-01T00:00:00Z and t.
// The count matches the .NET DateTime.Ticks convention for UTC instants.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return (t.Unix()+unixEpochSeconds)*ticksPerSecond + int64(t.Nanosecond())/int64(TickDuration)
}

// FromTicks is the inverse of Ticks.
func FromTicks(ticks int64) time.Time {
	secs := ticks / ticksPerSecond
	rem := ticks % ticksPerSecond
	return time.Unix(secs-unixEpochSeconds, rem*int64(TickDuration)).UTC()
}

// EncodeTimestamp returns the 8-byte little-endian tick encoding of t.
// This encoding is what the MAC covers and what sinks persist.
func EncodeTimestamp(t time.Time) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(Ticks(t)))
	return b
}

// DecodeTimestamp is the inverse of EncodeTimestamp.
func DecodeTimestamp(b [8]byte) time.Time {
	return FromTicks(int64(binary.LittleEndian.Uint64(b[:])))
}

// normalizeTimestamp returns t in UTC, truncated to tick precision, without a
// monotonic clock reading.
func normalizeTimestamp(t time.Time) time.Time {
	return FromTicks(Ticks(t))
}
