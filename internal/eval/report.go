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

package eval

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Report captures an evaluation run and its aggregated metrics.
type Report struct {
	RunID       string    `json:"run_id,omitempty"`
	Mode        Mode      `json:"mode"`
	GeneratedAt time.Time `json:"generated_at"`
	Samples     int       `json:"samples"`
	ContextSize int       `json:"context_size"`
	IndexName   string    `json:"index_name,omitempty"`
	Model       string    `json:"model,omitempty"`

	Retrieval *RetrievalSummary `json:"retrieval,omitempty"`
	Reader    *ReaderSummary    `json:"reader,omitempty"`

	Scores      []ExampleWithScore `json:"scores,omitempty"`
	Predictions []Prediction       `json:"predictions,omitempty"`
}

// RetrievalSummary aggregates reciprocal ranks. HitRate is the fraction of
// examples whose gold context was ranked first, MissRate the fraction where
// it was not retrieved at all.
type RetrievalSummary struct {
	MRR      float64 `json:"mrr"`
	HitRate  float64 `json:"hit_rate"`
	MissRate float64 `json:"miss_rate"`
}

// ReaderSummary holds SQuAD exact match and F1 in percent, with timings.
type ReaderSummary struct {
	ExactMatch         float64 `json:"exact_match"`
	F1                 float64 `json:"f1"`
	TotalTimeInSeconds float64 `json:"total_time_in_seconds"`
	SamplesPerSecond   float64 `json:"samples_per_second"`
	LatencyInSeconds   float64 `json:"latency_in_seconds"`
}

func summarizeRetrieval(scores []ExampleWithScore) *RetrievalSummary {
	s := &RetrievalSummary{}
	if len(scores) == 0 {
		return s
	}
	var hits, misses int
	for _, sc := range scores {
		s.MRR += sc.ReciprocalRank
		switch sc.ReciprocalRank {
		case 1:
			hits++
		case 0:
			misses++
		}
	}
	count := float64(len(scores))
	s.MRR /= count
	s.HitRate = float64(hits) / count
	s.MissRate = float64(misses) / count
	return s
}

func summarizeReader(preds []Prediction, elapsed time.Duration) *ReaderSummary {
	s := &ReaderSummary{TotalTimeInSeconds: elapsed.Seconds()}
	if len(preds) == 0 {
		return s
	}
	for _, p := range preds {
		s.ExactMatch += p.ExactMatch
		s.F1 += p.F1
	}
	count := float64(len(preds))
	s.ExactMatch = 100 * s.ExactMatch / count
	s.F1 = 100 * s.F1 / count
	if s.TotalTimeInSeconds > 0 {
		s.SamplesPerSecond = count / s.TotalTimeInSeconds
	}
	s.LatencyInSeconds = s.TotalTimeInSeconds / count
	return s
}

// LogValue implements [slog.LogValuer] with the summary metrics only.
func (r *Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("mode", string(r.Mode)),
		slog.Int("samples", r.Samples),
		slog.Int("context_size", r.ContextSize),
	}
	if r.Retrieval != nil {
		attrs = append(attrs,
			slog.Float64("mrr", r.Retrieval.MRR),
			slog.Float64("hit_rate", r.Retrieval.HitRate),
			slog.Float64("miss_rate", r.Retrieval.MissRate),
		)
	}
	if r.Reader != nil {
		attrs = append(attrs,
			slog.Float64("exact_match", r.Reader.ExactMatch),
			slog.Float64("f1", r.Reader.F1),
			slog.Float64("total_time_in_seconds", r.Reader.TotalTimeInSeconds),
			slog.Float64("samples_per_second", r.Reader.SamplesPerSecond),
			slog.Float64("latency_in_seconds", r.Reader.LatencyInSeconds),
		)
	}
	return slog.GroupValue(attrs...)
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
