// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/massimahiou/mapies-sub001/utils/textutils"
)

// ErrInvalidMapping is returned when a column mapping cannot produce candidates.
var ErrInvalidMapping = errors.New("invalid column mapping")

// ColumnMapping names the header of the source columns holding each field.
// Only Name is mandatory; Address or both Lat and Lng must also be present.
type ColumnMapping struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Lat     string `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng     string `json:"lng,omitempty" yaml:"lng,omitempty"`
}

// Validate checks the mapping names a column for the marker name and a
// column (or a pair of columns) to locate it.
func (m ColumnMapping) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name column is required", ErrInvalidMapping)
	}

	hasAddress := strings.TrimSpace(m.Address) != ""
	hasLat := strings.TrimSpace(m.Lat) != ""
	hasLng := strings.TrimSpace(m.Lng) != ""

	if hasLat != hasLng {
		return fmt.Errorf("%w: lat and lng columns must be mapped together", ErrInvalidMapping)
	}

	if !hasAddress && !hasLat {
		return fmt.Errorf("%w: an address column or both lat and lng columns are required", ErrInvalidMapping)
	}

	return nil
}

// MissingColumnError reports a mapped column that is not in the header row.
type MissingColumnError struct {
	Field  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q mapped to %s not found in header", e.Column, e.Field)
}

// columns holds the header position of every mapped field, -1 when absent.
type columns struct {
	name    int
	address int
	lat     int
	lng     int
}

func findColumn(header []string, column string) int {
	column = strings.TrimSpace(column)
	if column == "" {
		return -1
	}

	for i, h := range header {
		if strings.TrimSpace(h) == column {
			return i
		}
	}

	folded := textutils.FoldKey(column)
	for i, h := range header {
		if textutils.FoldKey(h) == folded {
			return i
		}
	}

	return -1
}

// resolve maps the column names to header positions. The name column is
// required; the locating columns are required only as a whole: a file with
// neither an address column nor a coordinate pair cannot produce markers.
func (m ColumnMapping) resolve(header []string) (columns, error) {
	cols := columns{
		name:    findColumn(header, m.Name),
		address: findColumn(header, m.Address),
		lat:     findColumn(header, m.Lat),
		lng:     findColumn(header, m.Lng),
	}

	if cols.name < 0 {
		return cols, &MissingColumnError{Field: "name", Column: m.Name}
	}

	if cols.lat < 0 || cols.lng < 0 {
		cols.lat, cols.lng = -1, -1
	}

	if cols.address < 0 && cols.lat < 0 {
		if strings.TrimSpace(m.Address) != "" {
			return cols, &MissingColumnError{Field: "address", Column: m.Address}
		}

		return cols, &MissingColumnError{Field: "lat", Column: m.Lat}
	}

	return cols, nil
}
