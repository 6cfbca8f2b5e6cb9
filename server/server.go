// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the import pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/massimahiou/mapies-sub001/extract"
	"github.com/massimahiou/mapies-sub001/ingest"
	"github.com/massimahiou/mapies-sub001/store"
)

// JobReader reads import jobs for polling clients.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*ingest.Job, error)
	List(ctx context.Context, userID string, limit int) ([]*ingest.Job, error)
}

// Scheduler accepts new imports and retries.
type Scheduler interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) (string, error)
	Retry(ctx context.Context, jobID string, rawText string) error
}

// MarkerReader reads the owner scoped markers of a map.
type MarkerReader interface {
	List(ctx context.Context, userID, mapID string) ([]*store.StoredMarker, error)
	Stats(ctx context.Context, userID, mapID string) (*store.MapStats, error)
}

type Server struct {
	jobs      JobReader
	scheduler Scheduler
	markers   MarkerReader
	public    store.Mirror
}

func NewServer(jobs JobReader, scheduler Scheduler, markers MarkerReader, public store.Mirror) *Server {
	return &Server{
		jobs:      jobs,
		scheduler: scheduler,
		markers:   markers,
		public:    public,
	}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/imports", s.submitImport)
	api.GET("/imports", s.listImports)
	api.GET("/imports/:job_id", s.getImport)
	api.POST("/imports/:job_id/retry", s.retryImport)
	api.GET("/public/maps/:map_id/markers", s.publicMarkers)
	api.GET("/users/:user_id/maps/:map_id/markers", s.mapMarkers)
	api.GET("/users/:user_id/maps/:map_id/stats", s.mapStats)

	return r
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Printf("Listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrNotRetryable), errors.Is(err, ingest.ErrJobAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrContentRequired),
		errors.Is(err, ingest.ErrInvalidRequest),
		errors.Is(err, extract.ErrInvalidMapping):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) submitImport(ctx *gin.Context) {
	var req ingest.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	jobID, err := s.scheduler.Submit(ctx.Request.Context(), req)
	if err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": ingest.StatusPending})
}

func (s *Server) getImport(ctx *gin.Context) {
	job, err := s.jobs.Get(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, job)
}

func (s *Server) listImports(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})

		return
	}

	limit := 50

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

			return
		}

		limit = n
	}

	jobs, err := s.jobs.List(ctx.Request.Context(), userID, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if jobs == nil {
		jobs = []*ingest.Job{}
	}

	ctx.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

type retryRequest struct {
	RawText string `json:"raw_text"`
}

func (s *Server) retryImport(ctx *gin.Context) {
	var req retryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	jobID := ctx.Param("job_id")
	if err := s.scheduler.Retry(ctx.Request.Context(), jobID, req.RawText); err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": ingest.StatusPending})
}

func (s *Server) publicMarkers(ctx *gin.Context) {
	if s.public == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "public markers are not enabled"})

		return
	}

	markers, err := s.public.List(ctx.Request.Context(), ctx.Param("map_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"markers": markers})
}

func (s *Server) mapMarkers(ctx *gin.Context) {
	markers, err := s.markers.List(ctx.Request.Context(), ctx.Param("user_id"), ctx.Param("map_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if markers == nil {
		markers = []*store.StoredMarker{}
	}

	ctx.JSON(http.StatusOK, gin.H{"markers": markers})
}

func (s *Server) mapStats(ctx *gin.Context) {
	stats, err := s.markers.Stats(ctx.Request.Context(), ctx.Param("user_id"), ctx.Param("map_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, stats)
}
