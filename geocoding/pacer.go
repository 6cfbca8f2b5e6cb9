// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// PacerOptions holds the delays applied around provider calls. Zero values
// disable the corresponding delay.
type PacerOptions struct {
	// RowInterval is the steady state spacing between geocoded rows.
	RowInterval time.Duration
	// RetryBackoff is the linear wait between attempts on the same row.
	RetryBackoff time.Duration
	// VariationDelay separates fallback variation attempts.
	VariationDelay time.Duration
}

// DefaultPacerOptions keeps a single job within the public Nominatim usage
// policy of one request per second.
var DefaultPacerOptions = PacerOptions{
	RowInterval:    time.Second,
	RetryBackoff:   2 * time.Second,
	VariationDelay: 250 * time.Millisecond,
}

// Pacer decides how long the pipeline waits before talking to a provider.
// A single Pacer is shared by every running job so the aggregate request
// rate stays bounded. A nil *Pacer never waits.
type Pacer struct {
	rows           *rate.Limiter
	retryBackoff   time.Duration
	variationDelay time.Duration
}

func NewPacer(opts PacerOptions) *Pacer {
	limit := rate.Inf
	if opts.RowInterval > 0 {
		limit = rate.Every(opts.RowInterval)
	}

	return &Pacer{
		rows:           rate.NewLimiter(limit, 1),
		retryBackoff:   opts.RetryBackoff,
		variationDelay: opts.VariationDelay,
	}
}

// Row blocks until the next row may be geocoded.
func (p *Pacer) Row(ctx context.Context) error {
	if p == nil {
		return nil
	}

	return p.rows.Wait(ctx)
}

// Backoff waits before the given retry attempt (1 based). The wait is linear:
// the same delay separates every attempt.
func (p *Pacer) Backoff(ctx context.Context, attempt int) error {
	if p == nil || attempt < 1 {
		return nil
	}

	return sleep(ctx, p.retryBackoff)
}

// Variation waits between two fallback variations of one address.
func (p *Pacer) Variation(ctx context.Context) error {
	if p == nil {
		return nil
	}

	return sleep(ctx, p.variationDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
