// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists import jobs and markers in DuckDB.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // database/sql driver
)

// DefaultPath is where the database lives when none is configured.
const DefaultPath = "db/mapies.duckdb"

const schema = `
	CREATE TABLE IF NOT EXISTS import_jobs (
		id VARCHAR PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		map_id VARCHAR NOT NULL,
		file_name VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		geocoding_failures INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		current_step VARCHAR NOT NULL DEFAULT '',
		step_progress INTEGER NOT NULL DEFAULT 0,
		step_total INTEGER NOT NULL DEFAULT 0,
		column_mapping VARCHAR NOT NULL,
		markers_added INTEGER NOT NULL DEFAULT 0,
		errors VARCHAR NOT NULL DEFAULT '[]',
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS markers (
		id VARCHAR PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		map_id VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		name_key VARCHAR NOT NULL,
		address VARCHAR NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		h3_res9 UBIGINT NOT NULL,
		source VARCHAR NOT NULL,
		job_id VARCHAR,
		row_index INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS map_stats (
		user_id VARCHAR NOT NULL,
		map_id VARCHAR NOT NULL,
		marker_count INTEGER NOT NULL,
		cell_count INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, map_id)
	);

	CREATE TABLE IF NOT EXISTS public_markers (
		id VARCHAR PRIMARY KEY,
		map_id VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		address VARCHAR NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		cell VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
`

// Open opens (creating if needed) the DuckDB database at path and makes sure
// the schema exists. An empty path opens an in-memory database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

// CreateSchema creates every table used by the pipeline.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	return nil
}
