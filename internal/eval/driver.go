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

// Package eval measures the question answering pipeline against a labelled
// dataset, either retrieval alone, the reader alone, or both end to end.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alan-mat/exqa/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeRetrieval Mode = "retrieval"
	ModeReader    Mode = "reader"
	ModeE2E       Mode = "e2e"
)

const DefaultWorkers = 4

var (
	ErrInvalidMode   = errors.New("invalid evaluation mode")
	ErrNoExamples    = errors.New("no examples to evaluate")
	ErrMissingReader = errors.New("evaluation mode requires a reader")
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRetrieval, ModeReader, ModeE2E:
		return m, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrInvalidMode, s)
	}
}

// NeedsRetriever reports whether m queries the search backend.
func (m Mode) NeedsRetriever() bool {
	return m == ModeRetrieval || m == ModeE2E
}

// NeedsReader reports whether m calls the reader.
func (m Mode) NeedsReader() bool {
	return m == ModeReader || m == ModeE2E
}

// Options controls evaluation behavior.
type Options struct {
	Mode        Mode
	IndexName   string
	ContextSize int
	Model       string
	Workers     int
	RunID       string

	// Progress, if set, is called after each example with the number done so far.
	Progress func(done, total int)
}

// Driver runs an evaluation over a dataset.
type Driver struct {
	retriever pipeline.Retriever
	reader    pipeline.Reader
	options   Options
}

// NewDriver creates a driver. The retriever may be nil in reader mode
// and the reader may be nil in retrieval mode.
func NewDriver(retriever pipeline.Retriever, reader pipeline.Reader, opts Options) (*Driver, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Mode.NeedsRetriever() && retriever == nil {
		return nil, fmt.Errorf("evaluation mode '%s' requires a retriever", opts.Mode)
	}
	if opts.Mode.NeedsReader() && reader == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrMissingReader, opts.Mode)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Driver{
		retriever: retriever,
		reader:    reader,
		options:   opts,
	}, nil
}

// Run evaluates every example. The first failing example aborts the run
// and its error is returned.
func (d *Driver) Run(ctx context.Context, examples []RawExample) (*Report, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}

	report := &Report{
		RunID:       d.options.RunID,
		Mode:        d.options.Mode,
		Samples:     len(examples),
		ContextSize: d.options.ContextSize,
	}
	if d.options.Mode.NeedsRetriever() {
		report.IndexName = d.options.IndexName
	}
	if d.options.Mode.NeedsReader() {
		report.Model = d.options.Model
	}

	slog.Info("starting evaluation", "run_id", d.options.RunID, "mode", d.options.Mode,
		"samples", len(examples), "context_size", d.options.ContextSize, "workers", d.options.Workers)

	start := time.Now()
	switch d.options.Mode {
	case ModeRetrieval:
		scores, err := d.scoreRetrieval(ctx, examples)
		if err != nil {
			return nil, err
		}
		report.Scores = scores
		report.Retrieval = summarizeRetrieval(scores)
	case ModeReader, ModeE2E:
		preds, err := d.predict(ctx, examples)
		if err != nil {
			return nil, err
		}
		report.Predictions = preds
		report.Reader = summarizeReader(preds, time.Since(start))
	}
	report.GeneratedAt = time.Now()

	slog.Info("evaluation finished", "run_id", d.options.RunID, "report", report)
	return report, nil
}

// forEach runs fn for every index with at most Workers in flight.
func (d *Driver) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.options.Workers)

	var done atomic.Int64
	for i := range n {
		g.Go(func() error {
			if err := fn(ctx, i); err != nil {
				return err
			}
			if d.options.Progress != nil {
				d.options.Progress(int(done.Add(1)), n)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) scoreRetrieval(ctx context.Context, examples []RawExample) ([]ExampleWithScore, error) {
	scores := make([]ExampleWithScore, len(examples))
	err := d.forEach(ctx, len(examples), func(ctx context.Context, i int) error {
		ex := examples[i]
		retrieved, err := d.retriever.Retrieve(ctx, ex.Question, d.options.IndexName, d.options.ContextSize)
		if err != nil {
			return fmt.Errorf("retrieval failed for %s: %w", ex.ID, err)
		}

		scores[i] = ExampleWithScore{
			ID:             ex.ID,
			Question:       ex.Question,
			Retrieved:      len(retrieved),
			ReciprocalRank: pipeline.ReciprocalRank(ex.Context, retrieved),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func (d *Driver) predict(ctx context.Context, examples []RawExample) ([]Prediction, error) {
	preds := make([]Prediction, len(examples))
	err := d.forEach(ctx, len(examples), func(ctx context.Context, i int) error {
		ewc, err := d.withContext(ctx, examples[i])
		if err != nil {
			return err
		}

		p, err := d.read(ctx, ewc)
		if err != nil {
			return err
		}
		preds[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preds, nil
}

// withContext pairs ex with the context the reader sees in the current mode.
func (d *Driver) withContext(ctx context.Context, ex RawExample) (ExampleWithContext, error) {
	if d.options.Mode != ModeE2E {
		return ExampleWithContext{Example: ex, Context: ex.Context}, nil
	}

	retrieved, err := d.retriever.Retrieve(ctx, ex.Question, d.options.IndexName, d.options.ContextSize)
	if err != nil {
		return ExampleWithContext{}, fmt.Errorf("retrieval failed for %s: %w", ex.ID, err)
	}
	return ExampleWithContext{Example: ex, Context: pipeline.Assemble(retrieved)}, nil
}

// read scores the raw reader candidate, the decision threshold does not apply here.
// An empty context predicts the empty answer without calling the reader.
func (d *Driver) read(ctx context.Context, ewc ExampleWithContext) (Prediction, error) {
	ex := ewc.Example
	p := Prediction{
		ID:       ex.ID,
		Question: ex.Question,
	}

	if ewc.Context != "" {
		c, err := d.reader.Read(ctx, ex.Question, ewc.Context)
		if err != nil {
			return Prediction{}, fmt.Errorf("reader failed for %s: %w", ex.ID, err)
		}
		p.Answer = c.Text
		p.Score = c.Score
	}

	p.ExactMatch, p.F1 = ScoreAnswer(p.Answer, ex.Answers.Text)
	return p, nil
}
