// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXToText renders the first sheet of a workbook as CSV text so spreadsheet
// uploads go through the same extraction as delimited files.
func XLSXToText(r io.Reader) (string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("%w: opening workbook: %w", ErrNotTabular, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrNotTabular)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	var b strings.Builder

	w := csv.NewWriter(&b)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("writing rows: %w", err)
	}

	return b.String(), nil
}

// ReadFile loads an upload from disk as text, converting workbooks.
func ReadFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := os.Open(path) // #nosec G304 - path is provided by the operator
		if err != nil {
			return "", fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()

		return XLSXToText(f)
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	return string(data), nil
}
