// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/massimahiou/mapies-sub001/spatial"
	"github.com/redis/go-redis/v9"
)

// PublicMarker is the shape served on the public read path of a map. It
// carries no owner information.
type PublicMarker struct {
	ID        string        `json:"id"`
	MapID     string        `json:"map_id"`
	Name      string        `json:"name"`
	Address   string        `json:"address,omitempty"`
	Point     spatial.Point `json:"point"`
	Cell      string        `json:"cell"`
	CreatedAt time.Time     `json:"created_at"`
}

// Mirror is the public copy of markers keyed by map id. Writes are best
// effort; the owner scoped markers table is the source of truth.
type Mirror interface {
	Mirror(ctx context.Context, mapID string, marker PublicMarker) error
	List(ctx context.Context, mapID string) ([]PublicMarker, error)
}

// DuckDBMirror keeps public markers in a table of the same database.
type DuckDBMirror struct {
	db *sql.DB
}

func NewDuckDBMirror(db *sql.DB) *DuckDBMirror {
	return &DuckDBMirror{db: db}
}

func (m *DuckDBMirror) Mirror(ctx context.Context, mapID string, marker PublicMarker) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO public_markers (id, map_id, name, address, lat, lng, cell, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		marker.ID, mapID, marker.Name, marker.Address, marker.Point.Lat, marker.Point.Lng, marker.Cell, marker.CreatedAt)
	if err != nil {
		return fmt.Errorf("mirroring marker %s: %w", marker.ID, err)
	}

	return nil
}

func (m *DuckDBMirror) List(ctx context.Context, mapID string) ([]PublicMarker, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, address, lat, lng, cell, created_at
		FROM public_markers
		WHERE map_id = ?
		ORDER BY created_at, id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("listing public markers: %w", err)
	}
	defer rows.Close()

	markers := []PublicMarker{}

	for rows.Next() {
		pm := PublicMarker{MapID: mapID}

		err := rows.Scan(&pm.ID, &pm.Name, &pm.Address, &pm.Point.Lat, &pm.Point.Lng, &pm.Cell, &pm.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("listing public markers: %w", err)
		}

		markers = append(markers, pm)
	}

	return markers, rows.Err()
}

// RedisMirror keeps public markers in one hash per map, field marker id,
// value the JSON encoded marker.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

func publicKey(mapID string) string {
	return "mapies:public:" + mapID
}

func (m *RedisMirror) Mirror(ctx context.Context, mapID string, marker PublicMarker) error {
	b, err := json.Marshal(marker)
	if err != nil {
		return err
	}

	if err := m.rdb.HSet(ctx, publicKey(mapID), marker.ID, b).Err(); err != nil {
		return fmt.Errorf("mirroring marker %s: %w", marker.ID, err)
	}

	return nil
}

func (m *RedisMirror) List(ctx context.Context, mapID string) ([]PublicMarker, error) {
	values, err := m.rdb.HGetAll(ctx, publicKey(mapID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing public markers: %w", err)
	}

	markers := make([]PublicMarker, 0, len(values))

	for id, v := range values {
		var pm PublicMarker
		if err := json.Unmarshal([]byte(v), &pm); err != nil {
			return nil, fmt.Errorf("decoding public marker %s: %w", id, err)
		}

		markers = append(markers, pm)
	}

	sort.Slice(markers, func(i, j int) bool {
		if !markers[i].CreatedAt.Equal(markers[j].CreatedAt) {
			return markers[i].CreatedAt.Before(markers[j].CreatedAt)
		}

		return markers[i].ID < markers[j].ID
	})

	return markers, nil
}
