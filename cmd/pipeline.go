// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/massimahiou/mapies-sub001/config"
	"github.com/massimahiou/mapies-sub001/geocoding"
	"github.com/massimahiou/mapies-sub001/ingest"
	"github.com/massimahiou/mapies-sub001/store"
	"github.com/redis/go-redis/v9"
)

// pipeline holds every component of an import, wired from the configuration.
type pipeline struct {
	db       *sql.DB
	rdb      *redis.Client
	jobs     *store.JobRepository
	markers  *store.MarkerRepository
	mirror   store.Mirror
	ingestor *ingest.Ingestor
}

func newPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	db, err := store.Open(ctx, cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	p := &pipeline{db: db}

	p.mirror = store.NewDuckDBMirror(db)

	if cfg.Storage.RedisURL != "" {
		p.rdb, err = store.NewRedisClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			db.Close()

			return nil, err
		}

		p.mirror = store.NewRedisMirror(p.rdb)
	}

	var trace io.Writer
	if rootOptions.traceHTTP || rootOptions.traceHTTPBody {
		trace = os.Stderr
	}

	userAgent := cfg.Geocoding.UserAgent
	if userAgent == geocoding.DefaultUserAgent {
		userAgent = fmt.Sprintf("mapies/%s", Version)
	}

	client := geocoding.NewHTTPClient(geocoding.ClientOptions{
		UserAgent:   userAgent,
		Timeout:     cfg.Geocoding.Timeout,
		TraceWriter: trace,
		TraceBody:   rootOptions.traceHTTPBody,
	})

	var fallback geocoding.Provider
	if cfg.Geocoding.FallbackToken != "" {
		fallback = geocoding.NewMapbox(cfg.Geocoding.FallbackURL, cfg.Geocoding.FallbackToken, client)
	} else {
		log.Print("MAPBOX_ACCESS_TOKEN is not set, fallback geocoding is disabled")
	}

	pacer := geocoding.NewPacer(cfg.PacerOptions())
	service := geocoding.NewService(
		geocoding.NewNominatim(cfg.Geocoding.PrimaryURL, client),
		fallback,
		pacer,
		geocoding.Options{Country: cfg.Geocoding.Country, MaxVariations: cfg.Pacing.MaxVariations},
	)

	p.jobs = store.NewJobRepository(db)
	p.markers = store.NewMarkerRepository(db, p.mirror, cfg.Storage.DuplicateRadius)
	p.ingestor = ingest.NewIngestor(p.jobs, ingest.NewOrchestrator(p.jobs, p.markers, service, pacer, cfg.Pacing.MaxAttempts))

	return p, nil
}

// Close waits for running jobs and releases the databases.
func (p *pipeline) Close() error {
	p.ingestor.Wait()

	var errs []error
	if p.rdb != nil {
		errs = append(errs, p.rdb.Close())
	}

	errs = append(errs, p.db.Close())

	return errors.Join(errs...)
}
