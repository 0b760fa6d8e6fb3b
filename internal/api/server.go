// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the media operation service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaops/internal/api/middleware"
	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/health"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
)

// Service is the subset of *service.Service the handlers use.
type Service interface {
	Run(ctx context.Context, d op.Descriptor) (engine.Result, error)
	Submit(d op.Descriptor) (string, error)
	RunBatch(ctx context.Context, descs []op.Descriptor, limit int) engine.BatchReport
	SubmitBatch(descs []op.Descriptor, limit int) (string, error)
	Cancel(id string) error
	Status(id string) (jobs.Job, error)
	Wait(ctx context.Context, id string) (jobs.Job, error)
	List(f jobs.Filter) []jobs.Job
}

// Config tunes the HTTP surface.
type Config struct {
	RateLimitRPM   int
	TracingService string
	// MaxWait caps the ?wait= long-poll on job status.
	MaxWait time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

const (
	defaultMaxWait      = 60 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// Server routes HTTP requests onto the service.
type Server struct {
	svc    Service
	health *health.Manager
	cfg    Config
	logger zerolog.Logger
}

// New builds a server. health may be nil, in which case probes always
// report healthy.
func New(svc Service, hm *health.Manager, cfg Config) *Server {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if hm == nil {
		hm = health.NewManager("")
	}
	return &Server{svc: svc, health: hm, cfg: cfg, logger: log.WithComponent("api")}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIRateLimit(s.cfg.RateLimitRPM))

		r.Post("/operations", s.handleOperation)
		r.Post("/batches", s.handleBatch)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)
	})
	return r
}
