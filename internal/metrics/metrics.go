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

// Package metrics exposes Prometheus instrumentation for answer extraction
// and evaluation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exqa"

// Extraction outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Metrics struct {
	// ExtractRequests counts extraction requests.
	// Labels: outcome (found|not_found|error)
	ExtractRequests *prometheus.CounterVec

	// ExtractDuration measures end to end extraction latency in seconds.
	ExtractDuration prometheus.Histogram

	// RetrievedPassages observes the number of passages retrieved per question.
	RetrievedPassages prometheus.Histogram

	// EvaluationRuns counts finished evaluation runs.
	// Labels: mode (retrieval|reader|e2e), status (completed|failed)
	EvaluationRuns *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExtractRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_requests_total",
			Help:      "Total number of answer extraction requests.",
		}, []string{"outcome"}),

		ExtractDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Duration of answer extraction requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		RetrievedPassages: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_passages",
			Help:      "Number of passages retrieved per question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),

		EvaluationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_runs_total",
			Help:      "Total number of finished evaluation runs.",
		}, []string{"mode", "status"}),
	}
}

// ObserveExtract records a finished extraction request.
func (m *Metrics) ObserveExtract(outcome string, passages int, d time.Duration) {
	m.ExtractRequests.WithLabelValues(outcome).Inc()
	m.ExtractDuration.Observe(d.Seconds())
	if outcome != OutcomeError {
		m.RetrievedPassages.Observe(float64(passages))
	}
}

func (m *Metrics) EvaluationFinished(mode string, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	m.EvaluationRuns.WithLabelValues(mode, status).Inc()
}
