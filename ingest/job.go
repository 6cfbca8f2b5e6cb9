// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest runs bulk imports: it extracts candidates from an uploaded
// file, resolves their coordinates and writes markers while keeping a
// pollable Job record up to date.
//
// Job status graph:
//
//	pending ──► processing ──► completed
//	   │            │
//	   └────────────┴────────► failed ──► pending (retry)
//
// completed is terminal. failed is terminal until a job is retried.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/massimahiou/mapies-sub001/extract"
	"github.com/massimahiou/mapies-sub001/geocoding"
	"github.com/massimahiou/mapies-sub001/spatial"
)

var (
	// ErrJobNotFound is returned by a JobStore for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotRetryable is returned when retrying a job that has not failed.
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	// ErrContentRequired is returned when a job is scheduled without file content.
	ErrContentRequired = errors.New("file content is required")
	// ErrJobAlreadyRunning is returned when a job id already has a run in flight.
	ErrJobAlreadyRunning = errors.New("job is already running")
	// ErrInvalidTransition is returned by a JobStore for illegal status changes.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrDuplicateMarker is returned by a MarkerSink when the map already has
	// the same place.
	ErrDuplicateMarker = errors.New("marker already exists on map")
	// ErrInvalidRequest is returned for submissions missing an owner.
	ErrInvalidRequest = errors.New("invalid import request")
)

// Status of an import job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}

	return "", fmt.Errorf("unknown job status %q", s)
}

// ValidTransition reports whether a job may move from one status to another.
func ValidTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether no run is expected to change the job anymore.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is the live snapshot polled by clients. Counters never decrease
// within a run and Processed never exceeds Total.
type Progress struct {
	Total             int    `json:"total"`
	Processed         int    `json:"processed"`
	GeocodingFailures int    `json:"geocoding_failures"`
	Duplicates        int    `json:"duplicates"`
	Skipped           int    `json:"skipped"`
	CurrentStep       string `json:"current_step"`
	StepProgress      int    `json:"step_progress"`
	StepTotal         int    `json:"step_total"`
}

// ProgressUpdate is a partial Progress. Nil fields are left untouched.
type ProgressUpdate struct {
	Total             *int
	Processed         *int
	GeocodingFailures *int
	Duplicates        *int
	Skipped           *int
	CurrentStep       *string
	StepProgress      *int
	StepTotal         *int
}

// Apply copies the fields present in u into p.
func (p *Progress) Apply(u ProgressUpdate) {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	set(&p.Total, u.Total)
	set(&p.Processed, u.Processed)
	set(&p.GeocodingFailures, u.GeocodingFailures)
	set(&p.Duplicates, u.Duplicates)
	set(&p.Skipped, u.Skipped)
	set(&p.StepProgress, u.StepProgress)
	set(&p.StepTotal, u.StepTotal)

	if u.CurrentStep != nil {
		p.CurrentStep = *u.CurrentStep
	}
}

// Results are recorded when a run ends.
type Results struct {
	MarkersAdded     int      `json:"markers_added"`
	Errors           []string `json:"errors"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// Job is the durable record of one import.
type Job struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	MapID         string                `json:"map_id"`
	FileName      string                `json:"file_name"`
	Status        Status                `json:"status"`
	Progress      Progress              `json:"progress"`
	ColumnMapping extract.ColumnMapping `json:"column_mapping"`
	Results       Results               `json:"results"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Source tells where a marker's coordinates came from.
type Source string

const (
	SourceFile     Source = "file"
	SourcePrimary  Source = Source(geocoding.ProviderPrimary)
	SourceFallback Source = Source(geocoding.ProviderFallback)
)

// Marker is a located place ready to be written on a map.
type Marker struct {
	Name     string        `json:"name"`
	Address  string        `json:"address,omitempty"`
	Point    spatial.Point `json:"point"`
	Source   Source        `json:"source"`
	JobID    string        `json:"job_id,omitempty"`
	RowIndex int           `json:"row_index"`
}

// JobStore persists Job records. Progress updates must only touch the fields
// they carry.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	SetStatus(ctx context.Context, jobID string, status Status) error
	UpdateProgress(ctx context.Context, jobID string, update ProgressUpdate) error
	Finalize(ctx context.Context, jobID string, status Status, results Results) error
	// Reset moves a failed job back to pending with zeroed progress and
	// results. It returns ErrNotRetryable when the job has not failed.
	Reset(ctx context.Context, jobID string) error
}

// MarkerSink writes markers to a map and returns the new marker id.
type MarkerSink interface {
	AddMarker(ctx context.Context, userID, mapID string, marker Marker) (string, error)
}

// Geocoder resolves one address.
type Geocoder interface {
	Resolve(ctx context.Context, address string) geocoding.Outcome
}
