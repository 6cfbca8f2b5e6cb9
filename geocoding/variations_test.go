// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVariations(t *testing.T) {
	tests := []struct {
		name    string
		address string
		limit   int
		want    []string
	}{
		{
			name:    "unit prefix, postal code and country",
			address: "201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada",
			want: []string{
				"201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada",
				"201-1234 Rue Saint-Denis, Montréal, QC",
				"1234 Rue Saint-Denis, Montréal, QC",
				"Montréal, QC",
			},
		},
		{
			name:    "leading suite part",
			address: "Suite 400, 100 King St W, Toronto, ON M5X 1A9",
			want: []string{
				"Suite 400, 100 King St W, Toronto, ON M5X 1A9",
				"Suite 400, 100 King St W, Toronto, ON",
				"100 King St W, Toronto, ON",
				"Toronto, ON",
			},
		},
		{
			name:    "us zip keeps street number",
			address: "12345 Main St, Springfield, IL 62701, USA",
			want: []string{
				"12345 Main St, Springfield, IL 62701, USA",
				"12345 Main St, Springfield, IL",
				"Springfield, IL",
			},
		},
		{
			name:    "street with last two parts",
			address: "55 Main St, Downtown, Springfield, IL 62701",
			want: []string{
				"55 Main St, Downtown, Springfield, IL 62701",
				"55 Main St, Downtown, Springfield, IL",
				"55 Main St, Springfield, IL",
				"Springfield, IL",
			},
		},
		{
			name:    "saint abbreviation is not a unit",
			address: "10 Rue Ste Catherine, Montréal",
			want: []string{
				"10 Rue Ste Catherine, Montréal",
				"Montréal",
			},
		},
		{
			name:    "hash unit",
			address: "77 Queen St #12, Ottawa, ON",
			want: []string{
				"77 Queen St #12, Ottawa, ON",
				"77 Queen St, Ottawa, ON",
				"Ottawa, ON",
			},
		},
		{
			name:    "single part",
			address: "  Montreal  ",
			want:    []string{"Montreal"},
		},
		{
			name:    "capped",
			address: "201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada",
			limit:   2,
			want: []string{
				"201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada",
				"201-1234 Rue Saint-Denis, Montréal, QC",
			},
		},
		{
			name:    "empty",
			address: "   ",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variations(tt.address, tt.limit)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Variations(%q) mismatch (-want +got):\n%s", tt.address, diff)
			}
		})
	}
}
