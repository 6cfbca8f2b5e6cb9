// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"regexp"
	"strings"

	"github.com/massimahiou/mapies-sub001/utils/textutils"
)

// DefaultMaxVariations is the number of rewrites tried against the fallback.
const DefaultMaxVariations = 5

var (
	caPostalCodeRe = regexp.MustCompile(`(?i)\b[A-Z]\d[A-Z]\s?\d[A-Z]\d\b`)
	usZipRe        = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	unitRe         = regexp.MustCompile(`(?i)(?:^|\s)(?:apt|app|suite|ste|unit|unité|bureau|local|room)\.?\s*#?\s*[\w-]*\d[\w-]*|\s*#\s*\d+\w*`)
	unitPrefixRe   = regexp.MustCompile(`^\d+[A-Za-z]?\s*-\s*(\d)`)
	countries      = map[string]bool{
		"canada":                   true,
		"usa":                      true,
		"us":                       true,
		"united states":            true,
		"united states of america": true,
	}
)

// Variations returns progressively simplified rewrites of address, starting
// with the address itself. Results are deduplicated case-insensitively and
// capped at limit.
//
// Given "201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada" it yields
// the original, the address without the postal code, without the unit, and
// the street and city forms.
func Variations(address string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxVariations
	}

	original := textutils.CollapseSpaces(address)
	if original == "" {
		return nil
	}

	parts := splitParts(original)

	if n := len(parts); n > 1 && countries[strings.ToLower(parts[n-1])] {
		parts = parts[:n-1]
	}

	noPostal := make([]string, 0, len(parts))

	for i, p := range parts {
		p = caPostalCodeRe.ReplaceAllString(p, "")
		if i > 0 {
			p = usZipRe.ReplaceAllString(p, "")
		}

		if p = textutils.CollapseSpaces(p); p != "" {
			noPostal = append(noPostal, p)
		}
	}

	noUnit := make([]string, 0, len(noPostal))

	for i, p := range noPostal {
		if i == 0 {
			p = unitPrefixRe.ReplaceAllString(p, "$1")
		}

		p = unitRe.ReplaceAllString(p, "")

		if p = textutils.CollapseSpaces(p); p != "" {
			noUnit = append(noUnit, p)
		}
	}

	candidates := []string{
		original,
		strings.Join(noPostal, ", "),
		strings.Join(noUnit, ", "),
	}

	if n := len(noUnit); n >= 4 {
		candidates = append(candidates, strings.Join(append([]string{noUnit[0]}, noUnit[n-2:]...), ", "))
	}

	switch n := len(noUnit); {
	case n > 2:
		candidates = append(candidates, strings.Join(noUnit[n-2:], ", "))
	case n == 2:
		candidates = append(candidates, noUnit[1])
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, limit)

	for _, c := range candidates {
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}

		seen[key] = true

		out = append(out, c)
		if len(out) == limit {
			break
		}
	}

	return out
}

func splitParts(s string) []string {
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))

	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}
