// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding resolves free-text addresses into coordinates by layering
// an open primary provider with a commercial fallback.
package geocoding

import (
	"context"

	"github.com/massimahiou/mapies-sub001/spatial"
)

// Provider is an external geocoding backend. Implementations return points
// in (lat, lng) order regardless of the backend's native axis order.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, country string) ([]spatial.Point, error)
}

// ProviderKind identifies which layer of the Service produced an Outcome.
type ProviderKind string

const (
	ProviderPrimary  ProviderKind = "primary"
	ProviderFallback ProviderKind = "fallback"
	ProviderNone     ProviderKind = "none"
)

// Outcome is the result of resolving one address. It is never persisted on
// its own: it becomes a marker or a failure in the job statistics.
type Outcome struct {
	Point    spatial.Point `json:"point"`
	Success  bool          `json:"success"`
	Provider ProviderKind  `json:"provider"`
	// Variation is the 1-based fallback variation that matched, 0 otherwise.
	Variation int    `json:"variation,omitempty"`
	Query     string `json:"query,omitempty"`
	Error     string `json:"error,omitempty"`
}
