// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/massimahiou/mapies-sub001/extract"
	"github.com/massimahiou/mapies-sub001/geocoding"
)

// DefaultMaxAttempts is how many times one address is resolved before the
// row counts as a geocoding failure.
const DefaultMaxAttempts = 3

// Request carries everything one run needs. RawText is never persisted.
type Request struct {
	JobID   string
	UserID  string
	MapID   string
	RawText string
	Mapping extract.ColumnMapping
}

// Orchestrator processes the rows of one job strictly in file order.
type Orchestrator struct {
	jobs        JobStore
	markers     MarkerSink
	geocoder    Geocoder
	pacer       *geocoding.Pacer
	maxAttempts int
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator. pacer may be nil to disable every
// delay, and maxAttempts below 1 selects DefaultMaxAttempts.
func NewOrchestrator(jobs JobStore, markers MarkerSink, geocoder Geocoder, pacer *geocoding.Pacer, maxAttempts int) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Orchestrator{
		jobs:        jobs,
		markers:     markers,
		geocoder:    geocoder,
		pacer:       pacer,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Run executes the job described by req. The outcome is recorded in the
// JobStore; the returned error is only informative for the caller's logs.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	start := o.now()

	if err := o.jobs.SetStatus(ctx, req.JobID, StatusProcessing); err != nil {
		err = fmt.Errorf("starting job %s: %w", req.JobID, err)
		log.Print(err)

		results := Results{
			Errors:           []string{err.Error()},
			ProcessingTimeMs: o.now().Sub(start).Milliseconds(),
		}
		if ferr := o.jobs.Finalize(ctx, req.JobID, StatusFailed, results); ferr != nil {
			return errors.Join(err, fmt.Errorf("recording failure of job %s: %w", req.JobID, ferr))
		}

		return err
	}

	results, err := o.run(ctx, req)
	results.ProcessingTimeMs = o.now().Sub(start).Milliseconds()

	if err != nil {
		log.Printf("Job %s failed: %v", req.JobID, err)

		results.Errors = []string{err.Error()}

		if ferr := o.jobs.Finalize(ctx, req.JobID, StatusFailed, results); ferr != nil {
			return errors.Join(err, fmt.Errorf("recording failure of job %s: %w", req.JobID, ferr))
		}

		return err
	}

	results.Errors = []string{}

	if err := o.jobs.Finalize(ctx, req.JobID, StatusCompleted, results); err != nil {
		return fmt.Errorf("completing job %s: %w", req.JobID, err)
	}

	return nil
}

type tally struct {
	added, failures, duplicates int
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Results, error) {
	var t tally

	if err := o.jobs.UpdateProgress(ctx, req.JobID, ProgressUpdate{CurrentStep: ptr("Starting...")}); err != nil {
		return Results{}, fmt.Errorf("updating progress: %w", err)
	}

	extracted, err := extract.Extract(req.RawText, req.Mapping)
	if err != nil {
		return Results{}, fmt.Errorf("parsing file: %w", err)
	}

	total := len(extracted.Candidates)
	log.Printf("Job %s: %d candidates, %d rows skipped", req.JobID, total, extracted.Skipped)

	err = o.jobs.UpdateProgress(ctx, req.JobID, ProgressUpdate{
		Total:       &total,
		Skipped:     &extracted.Skipped,
		StepTotal:   &total,
		CurrentStep: ptr(fmt.Sprintf("Geocoding addresses... (0/%d)", total)),
	})
	if err != nil {
		return Results{}, fmt.Errorf("updating progress: %w", err)
	}

	for i, c := range extracted.Candidates {
		if err := o.processRow(ctx, req, c, &t); err != nil {
			return Results{MarkersAdded: t.added}, err
		}

		processed := i + 1

		err := o.jobs.UpdateProgress(ctx, req.JobID, ProgressUpdate{
			Processed:         &processed,
			StepProgress:      &processed,
			GeocodingFailures: &t.failures,
			Duplicates:        &t.duplicates,
			CurrentStep:       ptr(fmt.Sprintf("Geocoding addresses... (%d/%d)", processed, total)),
		})
		if err != nil {
			return Results{MarkersAdded: t.added}, fmt.Errorf("updating progress: %w", err)
		}
	}

	log.Printf("Job %s: %d markers added, %d geocoding failures, %d duplicates",
		req.JobID, t.added, t.failures, t.duplicates)

	return Results{MarkersAdded: t.added}, nil
}

// processRow only returns errors that must abort the job.
func (o *Orchestrator) processRow(ctx context.Context, req Request, c extract.Candidate, t *tally) error {
	marker := Marker{
		Name:     c.Name,
		Address:  c.Address,
		JobID:    req.JobID,
		RowIndex: c.RowIndex,
	}

	if c.HasCoordinates() {
		marker.Point = *c.Point
		marker.Source = SourceFile
	} else {
		out, err := o.resolve(ctx, c.Address)
		if err != nil {
			return err
		}

		if !out.Success {
			log.Printf("Row %d: could not geocode %q: %s", c.RowIndex, c.Address, out.Error)
			t.failures++

			return nil
		}

		marker.Point = out.Point
		marker.Source = Source(out.Provider)
	}

	_, err := o.markers.AddMarker(ctx, req.UserID, req.MapID, marker)

	switch {
	case errors.Is(err, ErrDuplicateMarker):
		t.duplicates++
	case err != nil:
		log.Printf("Row %d: writing marker %q: %v", c.RowIndex, c.Name, err)
	default:
		t.added++
	}

	return nil
}

// resolve asks the geocoder up to maxAttempts times with a linear backoff.
func (o *Orchestrator) resolve(ctx context.Context, address string) (geocoding.Outcome, error) {
	if err := o.pacer.Row(ctx); err != nil {
		return geocoding.Outcome{}, fmt.Errorf("waiting for row slot: %w", err)
	}

	var out geocoding.Outcome

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := o.pacer.Backoff(ctx, attempt-1); err != nil {
				return out, fmt.Errorf("waiting to retry geocoding: %w", err)
			}
		}

		out = o.geocoder.Resolve(ctx, address)
		if out.Success {
			return out, nil
		}
	}

	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}
