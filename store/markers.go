// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/massimahiou/mapies-sub001/ingest"
	"github.com/massimahiou/mapies-sub001/spatial"
	"github.com/massimahiou/mapies-sub001/utils/textutils"
)

// CellResolution is the H3 resolution stored with every marker, roughly
// 0.1 km² per cell.
const CellResolution = 9

// DefaultDuplicateRadius is the distance in meters under which two markers
// with the same name are the same place.
const DefaultDuplicateRadius = 1.0

// StoredMarker is a marker as persisted on its owner's map.
type StoredMarker struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	MapID     string        `json:"map_id"`
	Name      string        `json:"name"`
	Address   string        `json:"address,omitempty"`
	Point     spatial.Point `json:"point"`
	Cell      uint64        `json:"-"`
	Source    ingest.Source `json:"source"`
	JobID     string        `json:"job_id,omitempty"`
	RowIndex  int           `json:"row_index"`
	CreatedAt time.Time     `json:"created_at"`
}

// MapStats are the aggregates kept for every map.
type MapStats struct {
	UserID      string    `json:"user_id"`
	MapID       string    `json:"map_id"`
	MarkerCount int       `json:"marker_count"`
	CellCount   int       `json:"cell_count"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// MarkerRepository is the ingest.MarkerSink. Every marker goes to the owner
// scoped markers table first and is then copied to the public mirror on a
// best effort basis.
type MarkerRepository struct {
	db     *sql.DB
	mirror Mirror
	radius float64
	now    func() time.Time
}

var _ ingest.MarkerSink = (*MarkerRepository)(nil)

// NewMarkerRepository creates a MarkerRepository. mirror may be nil. A
// non-positive radius disables duplicate detection.
func NewMarkerRepository(db *sql.DB, mirror Mirror, radius float64) *MarkerRepository {
	return &MarkerRepository{db: db, mirror: mirror, radius: radius, now: time.Now}
}

func (r *MarkerRepository) AddMarker(ctx context.Context, userID, mapID string, marker ingest.Marker) (string, error) {
	if err := marker.Point.Valid(); err != nil {
		return "", err
	}

	cell, err := marker.Point.Cell(CellResolution)
	if err != nil {
		return "", err
	}

	nameKey := textutils.FoldKey(marker.Name)

	if dup, err := r.isDuplicate(ctx, userID, mapID, nameKey, marker.Point); err != nil {
		return "", err
	} else if dup {
		return "", fmt.Errorf("%w: %q", ingest.ErrDuplicateMarker, marker.Name)
	}

	stored := StoredMarker{
		ID:        uuid.NewString(),
		UserID:    userID,
		MapID:     mapID,
		Name:      marker.Name,
		Address:   marker.Address,
		Point:     marker.Point,
		Cell:      cell,
		Source:    marker.Source,
		JobID:     marker.JobID,
		RowIndex:  marker.RowIndex,
		CreatedAt: r.now().UTC(),
	}

	var jobID *string
	if stored.JobID != "" {
		jobID = &stored.JobID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO markers (id, user_id, map_id, name, name_key, address, lat, lng, h3_res9, source, job_id, row_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, userID, mapID, stored.Name, nameKey, stored.Address,
		stored.Point.Lat, stored.Point.Lng, int64(cell), string(stored.Source), jobID, stored.RowIndex, stored.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting marker %q: %w", marker.Name, err)
	}

	if r.mirror != nil {
		if err := r.mirror.Mirror(ctx, mapID, stored.public()); err != nil {
			log.Printf("Mirroring marker %s of map %s: %v", stored.ID, mapID, err)
		}
	}

	if err := r.refreshStats(ctx, userID, mapID); err != nil {
		log.Printf("Refreshing stats of map %s/%s: %v", userID, mapID, err)
	}

	return stored.ID, nil
}

func (r *MarkerRepository) isDuplicate(ctx context.Context, userID, mapID, nameKey string, p spatial.Point) (bool, error) {
	if r.radius <= 0 {
		return false, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT lat, lng FROM markers
		WHERE user_id = ? AND map_id = ? AND name_key = ?`, userID, mapID, nameKey)
	if err != nil {
		return false, fmt.Errorf("looking for duplicates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var other spatial.Point
		if err := rows.Scan(&other.Lat, &other.Lng); err != nil {
			return false, err
		}

		if p.HaversineDistance(&other) <= r.radius {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (r *MarkerRepository) refreshStats(ctx context.Context, userID, mapID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO map_stats (user_id, map_id, marker_count, cell_count, updated_at)
		SELECT ?, ?, count(*), count(DISTINCT h3_res9), ?
		FROM markers
		WHERE user_id = ? AND map_id = ?
		ON CONFLICT (user_id, map_id) DO UPDATE SET
			marker_count = excluded.marker_count,
			cell_count = excluded.cell_count,
			updated_at = excluded.updated_at`,
		userID, mapID, r.now().UTC(), userID, mapID)

	return err
}

// Stats returns the aggregates of a map. Maps without markers have zero stats.
func (r *MarkerRepository) Stats(ctx context.Context, userID, mapID string) (*MapStats, error) {
	stats := &MapStats{UserID: userID, MapID: mapID}

	err := r.db.QueryRowContext(ctx, `
		SELECT marker_count, cell_count, updated_at
		FROM map_stats
		WHERE user_id = ? AND map_id = ?`, userID, mapID).
		Scan(&stats.MarkerCount, &stats.CellCount, &stats.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading stats of map %s/%s: %w", userID, mapID, err)
	}

	return stats, nil
}

// List returns the markers of a map in insertion order.
func (r *MarkerRepository) List(ctx context.Context, userID, mapID string) ([]*StoredMarker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, lat, lng, h3_res9, source, coalesce(job_id, ''), row_index, created_at
		FROM markers
		WHERE user_id = ? AND map_id = ?
		ORDER BY created_at, row_index`, userID, mapID)
	if err != nil {
		return nil, fmt.Errorf("listing markers: %w", err)
	}
	defer rows.Close()

	var markers []*StoredMarker

	for rows.Next() {
		m := &StoredMarker{UserID: userID, MapID: mapID}

		var source string

		err := rows.Scan(&m.ID, &m.Name, &m.Address, &m.Point.Lat, &m.Point.Lng,
			&m.Cell, &source, &m.JobID, &m.RowIndex, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("listing markers: %w", err)
		}

		m.Source = ingest.Source(source)
		markers = append(markers, m)
	}

	return markers, rows.Err()
}

func (m StoredMarker) public() PublicMarker {
	return PublicMarker{
		ID:        m.ID,
		MapID:     m.MapID,
		Name:      m.Name,
		Address:   m.Address,
		Point:     m.Point,
		Cell:      fmt.Sprintf("%x", m.Cell),
		CreatedAt: m.CreatedAt,
	}
}
