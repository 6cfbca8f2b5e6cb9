// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/massimahiou/mapies-sub001/spatial"
)

// DefaultMapboxURL is the Mapbox API host.
const DefaultMapboxURL = "https://api.mapbox.com"

// ErrMissingAccessToken is returned when the Mapbox geocoder has no token.
var ErrMissingAccessToken = errors.New("mapbox access token is not set")

// Mapbox uses the Mapbox forward geocoding API.
type Mapbox struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewMapbox creates a Mapbox geocoder.
func NewMapbox(baseURL, accessToken string, httpClient *http.Client) *Mapbox {
	if baseURL == "" {
		baseURL = DefaultMapboxURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Mapbox{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

type mapboxResponse struct {
	Features []struct {
		// Center is [lng, lat].
		Center    []float64 `json:"center"`
		PlaceName string    `json:"place_name"`
	} `json:"features"`
}

func (m *Mapbox) Name() string {
	return "mapbox"
}

func (m *Mapbox) Search(ctx context.Context, query string, country string) ([]spatial.Point, error) {
	if m.accessToken == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "mapbox request", Err: ErrMissingAccessToken}
	}

	params := url.Values{}
	params.Set("access_token", m.accessToken)
	params.Set("limit", "1")

	if country != "" {
		params.Set("country", strings.ToLower(country))
	}

	reqURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		m.baseURL, url.PathEscape(query), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building mapbox request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var mbResp mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mbResp); err != nil {
		return nil, fmt.Errorf("decoding mapbox response: %w", err)
	}

	points := make([]spatial.Point, 0, len(mbResp.Features))

	for _, f := range mbResp.Features {
		if len(f.Center) != 2 {
			continue
		}

		points = append(points, spatial.Point{Lat: f.Center[1], Lng: f.Center[0]})
	}

	if len(points) == 0 {
		return nil, notFound(query)
	}

	return points, nil
}
