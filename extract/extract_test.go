// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/massimahiou/mapies-sub001/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addressMapping = ColumnMapping{Name: "Name", Address: "Addr"}

var coordMapping = ColumnMapping{Name: "Name", Address: "Addr", Lat: "Lat", Lng: "Lng"}

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		mapping     ColumnMapping
		want        []Candidate
		wantSkipped int
	}{
		{
			name: "addresses in file order",
			input: "Name,Addr\n" +
				"Café Olimpico,124 Rue Saint-Viateur O, Montréal\n" +
				"Fairmount Bagel,74 Avenue Fairmount O\n" +
				"St-Viateur Bagel,263 Rue Saint-Viateur O\n",
			mapping: addressMapping,
			want: []Candidate{
				{Name: "Café Olimpico", Address: "124 Rue Saint-Viateur O", RowIndex: 0},
				{Name: "Fairmount Bagel", Address: "74 Avenue Fairmount O", RowIndex: 1},
				{Name: "St-Viateur Bagel", Address: "263 Rue Saint-Viateur O", RowIndex: 2},
			},
		},
		{
			name:        "row without name is skipped",
			input:       "Name,Addr\n  ,1 Main St\nShop,2 Main St\n",
			mapping:     addressMapping,
			want:        []Candidate{{Name: "Shop", Address: "2 Main St", RowIndex: 1}},
			wantSkipped: 1,
		},
		{
			name:        "row without address nor coordinates is skipped",
			input:       "Name,Addr\nShop,\nOther, 3 Main St \n",
			mapping:     addressMapping,
			want:        []Candidate{{Name: "Other", Address: "3 Main St", RowIndex: 1}},
			wantSkipped: 1,
		},
		{
			name:        "out of range latitude is skipped even with an address",
			input:       "Name,Addr,Lat,Lng\nBad,1 Main St,95,10\n",
			mapping:     coordMapping,
			want:        nil,
			wantSkipped: 1,
		},
		{
			name:    "explicit coordinates",
			input:   "Name,Addr,Lat,Lng\nMarché Jean-Talon,,45.5,-73.6\n",
			mapping: coordMapping,
			want: []Candidate{
				{Name: "Marché Jean-Talon", Point: &spatial.Point{Lat: 45.5, Lng: -73.6}, RowIndex: 0},
			},
		},
		{
			name:    "unparsable coordinates fall back to the address",
			input:   "Name,Addr,Lat,Lng\nShop,1 Main St,abc,-73.6\n",
			mapping: coordMapping,
			want:    []Candidate{{Name: "Shop", Address: "1 Main St", RowIndex: 0}},
		},
		{
			name:        "single coordinate without address is skipped",
			input:       "Name,Addr,Lat,Lng\nShop,,45.5,\n",
			mapping:     coordMapping,
			wantSkipped: 1,
		},
		{
			name:  "ragged rows",
			input: "Name,Addr,Notes\nShort\nLong,1 Main St,note,extra,more\n",
			mapping: ColumnMapping{
				Name:    "Name",
				Address: "Addr",
			},
			want:        []Candidate{{Name: "Long", Address: "1 Main St", RowIndex: 1}},
			wantSkipped: 1,
		},
		{
			name:    "stray quotes are kept as text",
			input:   "Name,Addr\nJo \"the\" Cafe,1 Main St\n",
			mapping: addressMapping,
			want:    []Candidate{{Name: "Jo \"the\" Cafe", Address: "1 Main St", RowIndex: 0}},
		},
		{
			name:        "unterminated quote only loses its own line",
			input:       "Name,Addr\n\"Cafe,1 Main St\nShop,2 Main St\nBar,3 Main St\n",
			mapping:     addressMapping,
			wantSkipped: 1,
			want: []Candidate{
				{Name: "Shop", Address: "2 Main St", RowIndex: 1},
				{Name: "Bar", Address: "3 Main St", RowIndex: 2},
			},
		},
		{
			name:    "stray quote after a multiline quoted field",
			input:   "Name,Addr\nShop,\"1 Main St\nSuite 2\"\nJo \"the\" Cafe,4 Main St\nBar,3 Main St\n",
			mapping: addressMapping,
			want: []Candidate{
				{Name: "Shop", Address: "1 Main St\nSuite 2", RowIndex: 0},
				{Name: "Jo \"the\" Cafe", Address: "4 Main St", RowIndex: 1},
				{Name: "Bar", Address: "3 Main St", RowIndex: 2},
			},
		},
		{
			name:    "blank rows are ignored",
			input:   "Name,Addr\nShop,1 Main St\n,\n , \n",
			mapping: addressMapping,
			want:    []Candidate{{Name: "Shop", Address: "1 Main St", RowIndex: 0}},
		},
		{
			name:    "semicolon export with decimal comma",
			input:   "\ufeffName;Lat;Lng\nShop;45,5;-73,6\n",
			mapping: ColumnMapping{Name: "Name", Lat: "Lat", Lng: "Lng"},
			want: []Candidate{
				{Name: "Shop", Point: &spatial.Point{Lat: 45.5, Lng: -73.6}, RowIndex: 0},
			},
		},
		{
			name:    "header matched ignoring case and accents",
			input:   "NOM , Adresse\nShop,1 Main St\n",
			mapping: ColumnMapping{Name: "nom", Address: "adresse"},
			want:    []Candidate{{Name: "Shop", Address: "1 Main St", RowIndex: 0}},
		},
		{
			name:    "header only",
			input:   "Name,Addr\n",
			mapping: addressMapping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.input, tt.mapping)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, got.Candidates); diff != "" {
				t.Errorf("Extract() candidates mismatch (-want +got):\n%s", diff)
			}

			assert.Equal(t, tt.wantSkipped, got.Skipped)
		})
	}
}

func TestExtractQuotedAddress(t *testing.T) {
	got, err := Extract("Name,Addr\nShop,\"1 Main St, Montréal, QC\"\n", addressMapping)
	require.NoError(t, err)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "1 Main St, Montréal, QC", got.Candidates[0].Address)
}

func TestExtractNotTabular(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", " \n\t\n"},
		{"binary", "\x00\x01\x02PK\x03\x04"},
		{"invalid utf8", "\xff\xfe\xfd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.input, addressMapping)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotTabular), "got %v", err)
			assert.Nil(t, got)
		})
	}
}

func TestExtractMissingColumns(t *testing.T) {
	_, err := Extract("This is a plain sentence, not a table\n", addressMapping)

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "name", missing.Field)

	_, err = Extract("Name,Street\nShop,1 Main St\n", addressMapping)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "address", missing.Field)

	// Address column absent but coordinates available.
	got, err := Extract("Name,Lat,Lng\nShop,45.5,-73.6\n", coordMapping)
	require.NoError(t, err)
	assert.Len(t, got.Candidates, 1)
}

func TestColumnMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mapping ColumnMapping
		wantErr bool
	}{
		{"name and address", ColumnMapping{Name: "n", Address: "a"}, false},
		{"name and coordinates", ColumnMapping{Name: "n", Lat: "la", Lng: "lo"}, false},
		{"all", ColumnMapping{Name: "n", Address: "a", Lat: "la", Lng: "lo"}, false},
		{"no name", ColumnMapping{Address: "a"}, true},
		{"name only", ColumnMapping{Name: "n"}, true},
		{"lat without lng", ColumnMapping{Name: "n", Address: "a", Lat: "la"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMapping)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
