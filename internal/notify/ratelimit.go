// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/jeranaias/integritylog/internal/security/audit"
)

// ErrRateLimited is returned when a notification is dropped by RateLimited.
var ErrRateLimited = errors.New("notification dropped: rate limit exceeded")

// RateLimited passes notifications to the wrapped notifier while tokens are
// available and drops them otherwise.
type RateLimited struct {
	next    audit.Notifier
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewRateLimited allows burst notifications at once, refilled at limit
// per second.
func NewRateLimited(next audit.Notifier, limit rate.Limit, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Notify implements audit.Notifier.
func (r *RateLimited) Notify(ctx context.Context, n audit.Notification) error {
	if !r.limiter.Allow() {
		r.dropped.Add(1)
		return ErrRateLimited
	}
	return r.next.Notify(ctx, n)
}

// Dropped returns how many notifications were discarded.
func (r *RateLimited) Dropped() uint64 {
	return r.dropped.Load()
}
