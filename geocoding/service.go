// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/massimahiou/mapies-sub001/spatial"
)

// Options configures a Service.
type Options struct {
	// Country restricts provider results (ISO 3166-1 alpha-2, e.g. "ca").
	Country string
	// MaxVariations caps the address rewrites tried against the fallback.
	MaxVariations int
}

// Service answers whether an address can be geocoded right now. It calls the
// primary provider once and then walks address variations against the
// fallback. It never retries on its own.
type Service struct {
	primary  Provider
	fallback Provider
	pacer    *Pacer
	opts     Options
}

// NewService creates a Service. fallback may be nil when no credential is
// configured, in which case only the primary is consulted.
func NewService(primary, fallback Provider, pacer *Pacer, opts Options) *Service {
	if opts.MaxVariations <= 0 {
		opts.MaxVariations = DefaultMaxVariations
	}

	return &Service{
		primary:  primary,
		fallback: fallback,
		pacer:    pacer,
		opts:     opts,
	}
}

// Resolve geocodes address. A failed Outcome carries every provider error
// joined in the order they happened.
func (s *Service) Resolve(ctx context.Context, address string) Outcome {
	var failures []string

	if s.primary != nil {
		p, err := s.search(ctx, s.primary, address)
		if err == nil {
			return Outcome{Point: p, Success: true, Provider: ProviderPrimary, Query: address}
		}

		failures = append(failures, fmt.Sprintf("%s: %v", s.primary.Name(), err))
	}

	if s.fallback == nil {
		failures = append(failures, "fallback: not configured")

		return failed(failures)
	}

	for i, v := range Variations(address, s.opts.MaxVariations) {
		if i > 0 {
			if err := s.pacer.Variation(ctx); err != nil {
				failures = append(failures, err.Error())

				break
			}
		}

		p, err := s.search(ctx, s.fallback, v)
		if err == nil {
			if i > 0 {
				log.Printf("Geocoded %q with variation %d %q", address, i+1, v)
			}

			return Outcome{Point: p, Success: true, Provider: ProviderFallback, Variation: i + 1, Query: v}
		}

		failures = append(failures, fmt.Sprintf("%s [%d] %q: %v", s.fallback.Name(), i+1, v, err))

		if IsQuotaExceededError(err) {
			// The credential was rejected, other variations won't fare better.
			break
		}

		if IsRateLimitError(err) || IsTimeoutError(err) {
			log.Printf("Fallback %s for %q, backing off", transientReason(err), v)

			if err := s.pacer.Backoff(ctx, 1); err != nil {
				failures = append(failures, err.Error())

				break
			}
		}
	}

	return failed(failures)
}

func (s *Service) search(ctx context.Context, provider Provider, query string) (spatial.Point, error) {
	points, err := provider.Search(ctx, query, s.opts.Country)
	if err != nil {
		return spatial.Point{}, err
	}

	if len(points) == 0 {
		return spatial.Point{}, notFound(query)
	}

	p := points[0]
	if err := p.Valid(); err != nil {
		return spatial.Point{}, fmt.Errorf("provider returned an invalid point: %w", err)
	}

	return p, nil
}

func transientReason(err error) string {
	if IsTimeoutError(err) {
		return "timed out"
	}

	return "rate limited"
}

func failed(failures []string) Outcome {
	return Outcome{
		Provider: ProviderNone,
		Error:    strings.Join(failures, "; "),
	}
}
