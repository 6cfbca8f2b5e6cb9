// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/massimahiou/mapies-sub001/extract"
)

// SubmitRequest is an upload waiting to become a job.
type SubmitRequest struct {
	UserID   string                `json:"user_id"`
	MapID    string                `json:"map_id"`
	FileName string                `json:"file_name"`
	RawText  string                `json:"raw_text"`
	Mapping  extract.ColumnMapping `json:"column_mapping"`
}

// Validate checks the request can be scheduled.
func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" || strings.TrimSpace(r.MapID) == "" {
		return fmt.Errorf("%w: user_id and map_id are required", ErrInvalidRequest)
	}

	if err := r.Mapping.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(r.RawText) == "" {
		return ErrContentRequired
	}

	return nil
}

// Ingestor accepts imports and runs them in the background, one goroutine
// per job. Callers observe the outcome by polling the JobStore.
type Ingestor struct {
	jobs         JobStore
	orchestrator *Orchestrator
	now          func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]bool
}

func NewIngestor(jobs JobStore, orchestrator *Orchestrator) *Ingestor {
	return &Ingestor{
		jobs:         jobs,
		orchestrator: orchestrator,
		now:          time.Now,
		active:       make(map[string]bool),
	}
}

// Submit records a pending job and schedules its run. It returns as soon as
// the job exists.
func (i *Ingestor) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	now := i.now().UTC()
	job := &Job{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		MapID:         req.MapID,
		FileName:      req.FileName,
		Status:        StatusPending,
		ColumnMapping: req.Mapping,
		Results:       Results{Errors: []string{}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := i.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	log.Printf("Job %s created for map %s/%s (%s)", job.ID, job.UserID, job.MapID, job.FileName)

	err := i.start(ctx, Request{
		JobID:   job.ID,
		UserID:  job.UserID,
		MapID:   job.MapID,
		RawText: req.RawText,
		Mapping: job.ColumnMapping,
	})
	if err != nil {
		return "", err
	}

	return job.ID, nil
}

// Retry restarts a failed job. The job record does not keep the uploaded
// file, so rawText must carry it again.
func (i *Ingestor) Retry(ctx context.Context, jobID string, rawText string) error {
	job, err := i.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != StatusFailed {
		return fmt.Errorf("%w: job %s is %s", ErrNotRetryable, jobID, job.Status)
	}

	if strings.TrimSpace(rawText) == "" {
		return ErrContentRequired
	}

	if i.isActive(jobID) {
		return ErrJobAlreadyRunning
	}

	if err := i.jobs.Reset(ctx, jobID); err != nil {
		return fmt.Errorf("resetting job %s: %w", jobID, err)
	}

	log.Printf("Job %s reset for retry", jobID)

	return i.start(ctx, Request{
		JobID:   job.ID,
		UserID:  job.UserID,
		MapID:   job.MapID,
		RawText: rawText,
		Mapping: job.ColumnMapping,
	})
}

// Wait blocks until every scheduled run has finished.
func (i *Ingestor) Wait() {
	i.wg.Wait()
}

func (i *Ingestor) isActive(jobID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.active[jobID]
}

func (i *Ingestor) start(ctx context.Context, req Request) error {
	i.mu.Lock()
	if i.active[req.JobID] {
		i.mu.Unlock()

		return ErrJobAlreadyRunning
	}

	i.active[req.JobID] = true
	i.mu.Unlock()

	// Runs outlive the request that scheduled them.
	runCtx := context.WithoutCancel(ctx)

	i.wg.Add(1)

	go func() {
		defer i.wg.Done()
		defer func() {
			i.mu.Lock()
			delete(i.active, req.JobID)
			i.mu.Unlock()
		}()
		defer i.recoverRun(runCtx, req.JobID)

		if err := i.orchestrator.Run(runCtx, req); err != nil {
			log.Printf("Job %s: %v", req.JobID, err)
		}
	}()

	return nil
}

// recoverRun turns a panic in a run into a failed job.
func (i *Ingestor) recoverRun(ctx context.Context, jobID string) {
	r := recover()
	if r == nil {
		return
	}

	log.Printf("Job %s panicked: %v", jobID, r)

	results := Results{Errors: []string{fmt.Sprintf("internal error: %v", r)}}
	if err := i.jobs.Finalize(ctx, jobID, StatusFailed, results); err != nil {
		log.Printf("Job %s: recording panic: %v", jobID, err)
	}
}
