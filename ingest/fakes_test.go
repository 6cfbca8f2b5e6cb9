// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/massimahiou/mapies-sub001/geocoding"
	"github.com/massimahiou/mapies-sub001/spatial"
)

// memJobs is an in-memory JobStore that keeps every progress snapshot.
type memJobs struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	history     map[string][]Progress
	failUpdates bool
	// failStarts is how many moves to processing fail before one succeeds.
	failStarts int
}

func newMemJobs() *memJobs {
	return &memJobs{
		jobs:    make(map[string]*Job),
		history: make(map[string][]Progress),
	}
}

func (m *memJobs) Create(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	m.jobs[job.ID] = &cp

	return nil
}

func (m *memJobs) Get(_ context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	cp := *job

	return &cp, nil
}

func (m *memJobs) SetStatus(_ context.Context, jobID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if !ValidTransition(job.Status, status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.Status, status)
	}

	if status == StatusProcessing && m.failStarts > 0 {
		m.failStarts--

		return errors.New("connection reset")
	}

	job.Status = status

	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, jobID string, update ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdates && update.Processed != nil {
		return errors.New("disk full")
	}

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.Progress.Apply(update)
	m.history[jobID] = append(m.history[jobID], job.Progress)

	return nil
}

func (m *memJobs) Finalize(_ context.Context, jobID string, status Status, results Results) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if !ValidTransition(job.Status, status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	job.Results = results

	return nil
}

func (m *memJobs) Reset(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if job.Status != StatusFailed {
		return ErrNotRetryable
	}

	job.Status = StatusPending
	job.Progress = Progress{}
	job.Results = Results{Errors: []string{}}
	m.history[jobID] = append(m.history[jobID], job.Progress)

	return nil
}

func (m *memJobs) snapshots(jobID string) []Progress {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Progress(nil), m.history[jobID]...)
}

// memSink records markers. Names listed in duplicates or broken are rejected.
type memSink struct {
	mu         sync.Mutex
	markers    []Marker
	duplicates map[string]bool
	broken     map[string]bool
}

func (s *memSink) AddMarker(_ context.Context, _, _ string, marker Marker) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duplicates[marker.Name] {
		return "", ErrDuplicateMarker
	}

	if s.broken[marker.Name] {
		return "", errors.New("connection reset")
	}

	s.markers = append(s.markers, marker)

	return fmt.Sprintf("m%d", len(s.markers)), nil
}

func (s *memSink) all() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Marker(nil), s.markers...)
}

// scriptedGeocoder answers each address with the next outcome of its script;
// the last outcome repeats. Unknown addresses fail.
type scriptedGeocoder struct {
	mu      sync.Mutex
	scripts map[string][]geocoding.Outcome
	calls   map[string]int
	panics  bool
}

func (g *scriptedGeocoder) Resolve(_ context.Context, address string) geocoding.Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.panics {
		panic("geocoder exploded")
	}

	if g.calls == nil {
		g.calls = make(map[string]int)
	}

	n := g.calls[address]
	g.calls[address]++

	script := g.scripts[address]
	if len(script) == 0 {
		return geocoding.Outcome{Provider: geocoding.ProviderNone, Error: "not found"}
	}

	if n >= len(script) {
		n = len(script) - 1
	}

	return script[n]
}

func (g *scriptedGeocoder) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := 0
	for _, n := range g.calls {
		total += n
	}

	return total
}

func found(lat, lng float64) geocoding.Outcome {
	return geocoding.Outcome{Point: spatial.Point{Lat: lat, Lng: lng}, Success: true, Provider: geocoding.ProviderPrimary}
}

var miss = geocoding.Outcome{Provider: geocoding.ProviderNone, Error: "not found"}

// tableProvider is a geocoding.Provider answering from a fixed table.
type tableProvider struct {
	name    string
	answers map[string]spatial.Point
	mu      sync.Mutex
	calls   []string
}

func (p *tableProvider) Name() string { return p.name }

func (p *tableProvider) Search(_ context.Context, query string, _ string) ([]spatial.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, query)

	if pt, ok := p.answers[query]; ok {
		return []spatial.Point{pt}, nil
	}

	return nil, nil
}

func (p *tableProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}
