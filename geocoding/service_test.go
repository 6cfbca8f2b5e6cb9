// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/massimahiou/mapies-sub001/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from a table keyed by query and records every call.
type fakeProvider struct {
	name    string
	answers map[string]spatial.Point
	err     error
	errs    map[string]error
	calls   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, query string, _ string) ([]spatial.Point, error) {
	f.calls = append(f.calls, query)

	if f.err != nil {
		return nil, f.err
	}

	if err, ok := f.errs[query]; ok {
		return nil, err
	}

	if p, ok := f.answers[query]; ok {
		return []spatial.Point{p}, nil
	}

	return nil, notFound(query)
}

const montreal = "201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada"

func TestResolvePrimarySuccessSkipsFallback(t *testing.T) {
	want := spatial.Point{Lat: 45.51, Lng: -73.56}
	primary := &fakeProvider{name: "primary", answers: map[string]spatial.Point{montreal: want}}
	fallback := &fakeProvider{name: "fallback"}

	s := NewService(primary, fallback, nil, Options{Country: "ca"})
	out := s.Resolve(context.Background(), montreal)

	assert.True(t, out.Success)
	assert.Equal(t, ProviderPrimary, out.Provider)
	assert.Equal(t, want, out.Point)
	assert.Equal(t, []string{montreal}, primary.calls)
	assert.Empty(t, fallback.calls)
}

func TestResolveFallbackVariation(t *testing.T) {
	want := spatial.Point{Lat: 45.51, Lng: -73.56}

	for k, variation := range Variations(montreal, DefaultMaxVariations) {
		primary := &fakeProvider{name: "primary"}
		fallback := &fakeProvider{name: "fallback", answers: map[string]spatial.Point{variation: want}}

		s := NewService(primary, fallback, NewPacer(PacerOptions{}), Options{})
		out := s.Resolve(context.Background(), montreal)

		require.True(t, out.Success, "variation %d", k+1)
		assert.Equal(t, ProviderFallback, out.Provider)
		assert.Equal(t, k+1, out.Variation)
		assert.Equal(t, variation, out.Query)
		assert.Equal(t, want, out.Point)
		assert.Len(t, primary.calls, 1)
		assert.Len(t, fallback.calls, k+1)
	}
}

func TestResolveTotalFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: ClassifyHTTPError(http.StatusServiceUnavailable, "")}
	fallback := &fakeProvider{name: "fallback"}

	s := NewService(primary, fallback, nil, Options{MaxVariations: 3})
	out := s.Resolve(context.Background(), montreal)

	assert.False(t, out.Success)
	assert.Equal(t, ProviderNone, out.Provider)
	assert.Len(t, fallback.calls, 3)
	assert.Contains(t, out.Error, "primary: service unavailable (status 503)")
	assert.Contains(t, out.Error, "fallback [3]")
}

func TestResolveWithoutFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary"}

	s := NewService(primary, nil, nil, Options{})
	out := s.Resolve(context.Background(), "nowhere")

	assert.False(t, out.Success)
	assert.Equal(t, ProviderNone, out.Provider)
	assert.Contains(t, out.Error, "fallback: not configured")
}

func TestResolveRejectsOutOfRangePoint(t *testing.T) {
	primary := &fakeProvider{name: "primary", answers: map[string]spatial.Point{"x": {Lat: 120, Lng: 0}}}
	fallback := &fakeProvider{name: "fallback", answers: map[string]spatial.Point{"x": {Lat: 45, Lng: -73}}}

	s := NewService(primary, fallback, nil, Options{})
	out := s.Resolve(context.Background(), "x")

	require.True(t, out.Success)
	assert.Equal(t, ProviderFallback, out.Provider)
	assert.Equal(t, spatial.Point{Lat: 45, Lng: -73}, out.Point)
}

func TestResolveStopsOnRejectedCredential(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	fallback := &fakeProvider{name: "fallback", err: ClassifyHTTPError(http.StatusUnauthorized, "")}

	s := NewService(primary, fallback, nil, Options{})
	out := s.Resolve(context.Background(), montreal)

	assert.False(t, out.Success)
	assert.Len(t, fallback.calls, 1)
}

func TestResolveBacksOffAfterTransientFallbackError(t *testing.T) {
	const backoff = 200 * time.Millisecond

	want := spatial.Point{Lat: 45.51, Lng: -73.56}
	second := Variations(montreal, DefaultMaxVariations)[1]

	tests := []struct {
		name        string
		err         error
		wantBackoff bool
	}{
		{name: "rate limited", err: ClassifyHTTPError(http.StatusTooManyRequests, ""), wantBackoff: true},
		{name: "timed out", err: classifyTransportError(context.DeadlineExceeded), wantBackoff: true},
		{name: "no match", err: notFound(montreal)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeProvider{
				name:    "fallback",
				errs:    map[string]error{montreal: tt.err},
				answers: map[string]spatial.Point{second: want},
			}
			s := NewService(&fakeProvider{name: "primary"}, fallback, NewPacer(PacerOptions{RetryBackoff: backoff}), Options{})

			start := time.Now()
			out := s.Resolve(context.Background(), montreal)
			elapsed := time.Since(start)

			require.True(t, out.Success)
			assert.Equal(t, 2, out.Variation)
			assert.Equal(t, []string{montreal, second}, fallback.calls)

			if tt.wantBackoff {
				assert.GreaterOrEqual(t, elapsed, backoff-10*time.Millisecond)
			} else {
				assert.Less(t, elapsed, backoff/2)
			}
		})
	}
}
