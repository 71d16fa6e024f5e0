// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/metrics"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/tasks"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the extraction pipeline and evaluation runs over HTTP.
type Server struct {
	config *config.Config

	pipeline *pipeline.Pipeline
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	transport transport.Transport
	enqueuer  tasks.Enqueuer
}

type Option func(*Server)

// WithEvaluations enables the evaluation endpoints.
func WithEvaluations(e tasks.Enqueuer, t transport.Transport) Option {
	return func(s *Server) {
		s.enqueuer = e
		s.transport = t
	}
}

func New(conf *config.Config, p *pipeline.Pipeline, opts ...Option) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:   conf,
		pipeline: p,
		registry: reg,
		metrics:  metrics.NewMetrics(reg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	if s.enqueuer != nil && s.transport != nil {
		r.HandleFunc("/evaluations", s.handleCreateEvaluation).Methods(http.MethodPost)
		r.HandleFunc("/evaluations/{id}", s.handleGetEvaluation).Methods(http.MethodGet)
	}
	return r
}

// Serve listens until ctx is cancelled, then shuts down gracefully. When a
// transport is configured and no evaluation backend was given, one is
// created from it.
func (s *Server) Serve(ctx context.Context) error {
	if s.enqueuer == nil && s.config.Transport.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     s.config.Transport.Addr,
			Username: s.config.Transport.Username,
			Password: s.config.Transport.Password,
			DB:       s.config.Transport.DB,
		})
		defer rdb.Close()

		client := asynq.NewClientFromRedisClient(rdb)
		defer client.Close()

		s.enqueuer = client
		s.transport = transport.NewRedisTransport(rdb)
	}

	lisAddr := fmt.Sprintf("%s:%d", s.config.Server.ListenHost, s.config.Server.ListenPort)
	srv := &http.Server{
		Addr:         lisAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "listener", lisAddr, "evaluations", s.enqueuer != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("handled request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
