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

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/metrics"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/reader"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/alan-mat/exqa/internal/tasks"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 5 * time.Second

// Worker executes queued evaluation runs.
type Worker struct {
	config *config.Config

	rdb         *redis.Client
	asynqServer *asynq.Server

	transport transport.Transport
	retriever pipeline.Retriever

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func New(conf *config.Config) *Worker {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Worker{
		config:   conf,
		registry: reg,
		metrics:  metrics.NewMetrics(reg),
	}
}

// MetricsHandler serves the worker metrics on /metrics.
func (w *Worker) MetricsHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Start blocks until the worker receives a termination signal.
func (w *Worker) Start() error {
	if err := w.config.RequireTransport(); err != nil {
		return err
	}

	w.rdb = redis.NewClient(&redis.Options{
		Addr:     w.config.Transport.Addr,
		Username: w.config.Transport.Username,
		Password: w.config.Transport.Password,
		DB:       w.config.Transport.DB,
	})
	defer w.rdb.Close()

	w.asynqServer = asynq.NewServerFromRedisClient(
		w.rdb,
		asynq.Config{
			Concurrency: w.config.Worker.Concurrency,
		},
	)

	w.transport = transport.NewRedisTransport(w.rdb)

	r, err := search.New(context.Background(), w.config)
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}
	w.retriever = r
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	newReader := func(model string) pipeline.Reader {
		return reader.New(w.config.Reader, model)
	}

	taskMux := asynq.NewServeMux()
	taskMux.Handle(tasks.TypeEvaluate, tasks.NewTaskHandler(w.transport, w.retriever, newReader, w.metrics))

	if port := w.config.Worker.MetricsPort; port > 0 {
		srv := w.serveMetrics(fmt.Sprintf(":%d", port))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("failed to shut down metrics listener", "err", err)
			}
		}()
	}

	if err := w.asynqServer.Run(taskMux); err != nil {
		return err
	}
	return nil
}

func (w *Worker) serveMetrics(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.MetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Metrics listener starting", "listener", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve metrics", "err", err)
		}
	}()
	return srv
}
