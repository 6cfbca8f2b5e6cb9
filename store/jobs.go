// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/massimahiou/mapies-sub001/ingest"
)

const jobColumns = `id, user_id, map_id, file_name, status,
	total, processed, geocoding_failures, duplicates, skipped,
	current_step, step_progress, step_total,
	column_mapping, markers_added, errors, processing_time_ms,
	created_at, updated_at`

// JobRepository is the DuckDB backed ingest.JobStore.
type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ingest.JobStore = (*JobRepository)(nil)

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

func (r *JobRepository) Create(ctx context.Context, job *ingest.Job) error {
	mapping, err := json.Marshal(job.ColumnMapping)
	if err != nil {
		return fmt.Errorf("encoding column mapping: %w", err)
	}

	errs, err := encodeErrors(job.Results.Errors)
	if err != nil {
		return err
	}

	p := job.Progress
	_, err = r.db.ExecContext(ctx, `INSERT INTO import_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.MapID, job.FileName, string(job.Status),
		p.Total, p.Processed, p.GeocodingFailures, p.Duplicates, p.Skipped,
		p.CurrentStep, p.StepProgress, p.StepTotal,
		string(mapping), job.Results.MarkersAdded, errs, job.Results.ProcessingTimeMs,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ingest.Job, error) {
	var (
		job     ingest.Job
		status  string
		mapping string
		errs    string
	)

	p := &job.Progress

	err := row.Scan(
		&job.ID, &job.UserID, &job.MapID, &job.FileName, &status,
		&p.Total, &p.Processed, &p.GeocodingFailures, &p.Duplicates, &p.Skipped,
		&p.CurrentStep, &p.StepProgress, &p.StepTotal,
		&mapping, &job.Results.MarkersAdded, &errs, &job.Results.ProcessingTimeMs,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.Status, err = ingest.ParseStatus(status); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(mapping), &job.ColumnMapping); err != nil {
		return nil, fmt.Errorf("decoding column mapping of job %s: %w", job.ID, err)
	}

	if err := json.Unmarshal([]byte(errs), &job.Results.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors of job %s: %w", job.ID, err)
	}

	return &job, nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (*ingest.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ingest.ErrJobNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}

	return job, nil
}

// List returns the most recent jobs of a user, newest first.
func (r *JobRepository) List(ctx context.Context, userID string, limit int) ([]*ingest.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM import_jobs
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ingest.Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("listing jobs: %w", err)
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// transition changes the status of a job inside tx after checking the move
// is allowed by the job state machine.
func (r *JobRepository) transition(ctx context.Context, tx *sql.Tx, jobID string, to ingest.Status) error {
	var current string

	err := tx.QueryRowContext(ctx, `SELECT status FROM import_jobs WHERE id = ?`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ingest.ErrJobNotFound, jobID)
	}

	if err != nil {
		return fmt.Errorf("reading status of job %s: %w", jobID, err)
	}

	if !ingest.ValidTransition(ingest.Status(current), to) {
		return fmt.Errorf("%w: job %s from %s to %s", ingest.ErrInvalidTransition, jobID, current, to)
	}

	return nil
}

func (r *JobRepository) SetStatus(ctx context.Context, jobID string, status ingest.Status) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.transition(ctx, tx, jobID, status); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `UPDATE import_jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), r.now().UTC(), jobID)

		return err
	})
}

// UpdateProgress only writes the columns present in update.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, update ingest.ProgressUpdate) error {
	var (
		sets []string
		args []any
	)

	add := func(column string, v *int) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}

	add("total", update.Total)
	add("processed", update.Processed)
	add("geocoding_failures", update.GeocodingFailures)
	add("duplicates", update.Duplicates)
	add("skipped", update.Skipped)
	add("step_progress", update.StepProgress)
	add("step_total", update.StepTotal)

	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC(), jobID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE import_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating progress of job %s: %w", jobID, err)
	}

	return expectRow(res, jobID)
}

func (r *JobRepository) Finalize(ctx context.Context, jobID string, status ingest.Status, results ingest.Results) error {
	errs, err := encodeErrors(results.Errors)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.transition(ctx, tx, jobID, status); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE import_jobs
			SET status = ?, markers_added = ?, errors = ?, processing_time_ms = ?, updated_at = ?
			WHERE id = ?`,
			string(status), results.MarkersAdded, errs, results.ProcessingTimeMs, r.now().UTC(), jobID)

		return err
	})
}

func (r *JobRepository) Reset(ctx context.Context, jobID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = ?, total = 0, processed = 0, geocoding_failures = 0, duplicates = 0,
		    skipped = 0, current_step = '', step_progress = 0, step_total = 0,
		    markers_added = 0, errors = '[]', processing_time_ms = 0, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(ingest.StatusPending), r.now().UTC(), jobID, string(ingest.StatusFailed))
	if err != nil {
		return fmt.Errorf("resetting job %s: %w", jobID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n > 0 {
		return nil
	}

	if _, err := r.Get(ctx, jobID); err != nil {
		return err
	}

	return fmt.Errorf("%w: job %s", ingest.ErrNotRetryable, jobID)
}

func (r *JobRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Join(err, rErr)
		}

		return err
	}

	return tx.Commit()
}

func expectRow(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ingest.ErrJobNotFound, jobID)
	}

	return nil
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}

	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encoding job errors: %w", err)
	}

	return string(b), nil
}
