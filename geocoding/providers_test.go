// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/massimahiou/mapies-sub001/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimSearch(t *testing.T) {
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")

		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "ca", r.URL.Query().Get("countrycodes"))

		switch r.URL.Query().Get("q") {
		case "1234 Rue Saint-Denis, Montréal":
			fmt.Fprint(w, `[{"lat":"45.5150","lon":"-73.5650","display_name":"Rue Saint-Denis"}]`)
		case "busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientOptions{UserAgent: "mapies-test/1.0"})
	n := NewNominatim(srv.URL+"/", client)
	ctx := context.Background()

	points, err := n.Search(ctx, "1234 Rue Saint-Denis, Montréal", "CA")
	require.NoError(t, err)
	assert.Equal(t, []spatial.Point{{Lat: 45.515, Lng: -73.565}}, points)
	assert.Equal(t, "mapies-test/1.0", gotUA)

	_, err = n.Search(ctx, "nowhere", "ca")
	assert.True(t, IsNotFoundError(err))

	_, err = n.Search(ctx, "busy", "ca")
	assert.True(t, IsRateLimitError(err))
}

func TestMapboxSearchSwapsAxes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "pk.test" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		assert.True(t, strings.HasPrefix(r.URL.Path, "/geocoding/v5/mapbox.places/"))
		assert.Equal(t, "ca", r.URL.Query().Get("country"))

		if strings.Contains(r.URL.Path, "Toronto") {
			fmt.Fprint(w, `{"features":[{"center":[-79.3832,43.6532],"place_name":"Toronto, Ontario"}]}`)

			return
		}

		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer srv.Close()

	ctx := context.Background()

	m := NewMapbox(srv.URL, "pk.test", srv.Client())
	points, err := m.Search(ctx, "Toronto, ON", "ca")
	require.NoError(t, err)
	assert.Equal(t, []spatial.Point{{Lat: 43.6532, Lng: -79.3832}}, points)

	_, err = m.Search(ctx, "Atlantis", "ca")
	assert.True(t, IsNotFoundError(err))

	_, err = NewMapbox(srv.URL, "pk.wrong", srv.Client()).Search(ctx, "Toronto", "ca")
	assert.True(t, IsQuotaExceededError(err))

	_, err = NewMapbox(srv.URL, "", srv.Client()).Search(ctx, "Toronto", "ca")
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}

func TestServiceOverHTTP(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the city form of the address is known.
		if strings.HasSuffix(r.URL.Path, "/Ottawa, ON.json") {
			fmt.Fprint(w, `{"features":[{"center":[-75.6972,45.4215]}]}`)

			return
		}

		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer fallback.Close()

	client := NewHTTPClient(ClientOptions{})
	s := NewService(
		NewNominatim(primary.URL, client),
		NewMapbox(fallback.URL, "pk.test", client),
		NewPacer(PacerOptions{}),
		Options{Country: "ca"},
	)

	out := s.Resolve(context.Background(), "77 Queen St #12, Ottawa, ON")
	require.True(t, out.Success, out.Error)
	assert.Equal(t, ProviderFallback, out.Provider)
	assert.Equal(t, 3, out.Variation)
	assert.Equal(t, spatial.Point{Lat: 45.4215, Lng: -75.6972}, out.Point)
}
