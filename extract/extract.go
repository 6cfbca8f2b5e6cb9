// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract turns uploaded tabular files into address candidates.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/massimahiou/mapies-sub001/spatial"
)

// ErrNotTabular is returned when the input cannot be read as tabular data at all.
var ErrNotTabular = errors.New("input is not tabular data")

// Candidate is one row's extracted intent: a named place, located either by
// an address to geocode or by explicit coordinates.
type Candidate struct {
	Name    string         `json:"name"`
	Address string         `json:"address,omitempty"`
	Point   *spatial.Point `json:"point,omitempty"`
	// RowIndex is the 0-based position of the data row, header excluded.
	RowIndex int `json:"row_index"`
}

// HasCoordinates reports whether the row supplied its own coordinates.
func (c Candidate) HasCoordinates() bool {
	return c.Point != nil
}

// Result holds the retained candidates, in file order, and the number of
// rows that were dropped.
type Result struct {
	Candidates []Candidate
	Skipped    int
}

// Extract parses rawText according to mapping. Rows that cannot be used are
// counted in Result.Skipped; only input that is not tabular at all, or a
// header lacking the mapped columns, returns an error.
func Extract(rawText string, mapping ColumnMapping) (*Result, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(rawText, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrNotTabular)
	}

	if strings.ContainsRune(text, 0) || !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: binary content", ErrNotTabular)
	}

	rows := newRowReader(text, sniffDelimiter(text))

	header, err := rows.next()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrNotTabular, err)
	}

	cols, err := mapping.resolve(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for rowIndex := 0; ; rowIndex++ {
		record, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped++

				continue
			}

			return nil, fmt.Errorf("reading row %d: %w", rowIndex, err)
		}

		if isBlank(record) {
			continue
		}

		candidate, ok := cols.candidate(record, rowIndex)
		if !ok {
			result.Skipped++

			continue
		}

		result.Candidates = append(result.Candidates, candidate)
	}

	return result, nil
}

// rowReader reads records strictly so a broken quote cannot swallow the
// rest of the file. A record the strict parser rejects is reparsed leniently
// from its first physical line alone and reading resumes on the next line.
type rowReader struct {
	text   string
	comma  rune
	reader *csv.Reader
}

func newRowReader(text string, comma rune) *rowReader {
	r := &rowReader{comma: comma}
	r.reset(text)

	return r
}

func (r *rowReader) reset(text string) {
	r.text = text
	r.reader = csv.NewReader(strings.NewReader(text))
	r.reader.Comma = r.comma
	r.reader.FieldsPerRecord = -1
}

func (r *rowReader) next() ([]string, error) {
	record, err := r.reader.Read()

	var parseErr *csv.ParseError
	if !errors.As(err, &parseErr) {
		return record, err
	}

	start := lineOffset(r.text, parseErr.StartLine)
	end := lineOffset(r.text, parseErr.StartLine+1)
	line := r.text[start:end]
	r.reset(r.text[end:])

	lenient := csv.NewReader(strings.NewReader(line))
	lenient.Comma = r.comma
	lenient.FieldsPerRecord = -1
	lenient.LazyQuotes = true

	record, err = lenient.Read()
	if err != nil {
		return nil, parseErr
	}

	return record, nil
}

// lineOffset returns the byte offset of the 1-based line n of text.
func lineOffset(text string, n int) int {
	off := 0

	for i := 1; i < n; i++ {
		j := strings.IndexByte(text[off:], '\n')
		if j < 0 {
			return len(text)
		}

		off += j + 1
	}

	return off
}

func (c columns) candidate(record []string, rowIndex int) (Candidate, bool) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}

		return strings.TrimSpace(record[idx])
	}

	candidate := Candidate{
		Name:     field(c.name),
		Address:  field(c.address),
		RowIndex: rowIndex,
	}

	if candidate.Name == "" {
		return candidate, false
	}

	lat, latOK := parseCoordinate(field(c.lat))
	lng, lngOK := parseCoordinate(field(c.lng))

	if latOK && lngOK {
		point := spatial.Point{Lat: lat, Lng: lng}
		if point.Valid() != nil {
			return candidate, false
		}

		candidate.Point = &point
	}

	if candidate.Point == nil && candidate.Address == "" {
		return candidate, false
	}

	return candidate, true
}

// parseCoordinate accepts decimal degrees, tolerating a decimal comma.
func parseCoordinate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}

	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}

// sniffDelimiter picks the separator of spreadsheet exports that do not use commas.
func sniffDelimiter(text string) rune {
	firstLine, _, _ := strings.Cut(text, "\n")

	switch {
	case strings.ContainsRune(firstLine, ','):
		return ','
	case strings.ContainsRune(firstLine, ';'):
		return ';'
	case strings.ContainsRune(firstLine, '\t'):
		return '\t'
	default:
		return ','
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}

	return true
}
