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

package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alan-mat/exqa/internal/eval"
	"github.com/alan-mat/exqa/internal/metrics"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/hibiken/asynq"
)

// ReaderFactory returns a reader for the named model checkpoint.
type ReaderFactory func(model string) pipeline.Reader

type TaskHandler struct {
	transport transport.Transport
	retriever pipeline.Retriever
	newReader ReaderFactory
	metrics   *metrics.Metrics
}

// NewTaskHandler creates the evaluation task handler. m may be nil.
func NewTaskHandler(t transport.Transport, retriever pipeline.Retriever, newReader ReaderFactory, m *metrics.Metrics) *TaskHandler {
	return &TaskHandler{
		transport: t,
		retriever: retriever,
		newReader: newReader,
		metrics:   m,
	}
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeEvaluate {
		return fmt.Errorf("unrecognized task type (%w)", asynq.SkipRetry)
	}

	var p EvaluatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid evaluate payload: %v (%w)", err, asynq.SkipRetry)
	}
	id := p.RunID
	slog.Info("received evaluate task", "id", id, "mode", p.Mode, "dataset", p.DatasetPath)

	trace := &transport.RunTrace{
		ID:          id,
		Status:      transport.TraceStatusRunning,
		StartedAt:   time.Now().UnixNano(),
		Mode:        p.Mode,
		DatasetPath: p.DatasetPath,
	}
	if prev, err := h.transport.GetTrace(ctx, id); err == nil {
		trace.QueuedAt = prev.QueuedAt
	}

	report, err := h.evaluate(ctx, p, trace)
	if h.metrics != nil {
		h.metrics.EvaluationFinished(p.Mode, err)
	}
	if err != nil {
		slog.Error("evaluation failed", "id", id, "err", err)

		trace.CompletedAt = time.Now().UnixNano()
		trace.Status = transport.TraceStatusFailed
		trace.Error = err.Error()
		if err := h.transport.SetTrace(ctx, trace); err != nil {
			slog.Error("failed to set trace", "id", id, "err", err)
		}

		return fmt.Errorf("evaluation failed: %v (%w)", err, asynq.SkipRetry)
	}

	if err := h.transport.SetReport(ctx, id, report); err != nil {
		slog.Error("failed to store report", "id", id, "err", err)
	}

	trace.CompletedAt = time.Now().UnixNano()
	trace.Status = transport.TraceStatusCompleted
	trace.Done = report.Samples
	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", id, "err", err)
	}

	return nil
}

func (h TaskHandler) evaluate(ctx context.Context, p EvaluatePayload, trace *transport.RunTrace) (*eval.Report, error) {
	mode, err := eval.ParseMode(p.Mode)
	if err != nil {
		return nil, err
	}

	examples, err := eval.Prepare(p.DatasetPath, p.ValSetSize)
	if err != nil {
		return nil, err
	}

	trace.Samples = len(examples)
	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", err)
	}

	var reader pipeline.Reader
	if mode.NeedsReader() {
		reader = h.newReader(p.Model)
	}

	d, err := eval.NewDriver(h.retriever, reader, eval.Options{
		Mode:        mode,
		IndexName:   p.IndexName,
		ContextSize: p.ContextSize,
		Model:       p.Model,
		Workers:     p.Workers,
		RunID:       p.RunID,
		Progress: func(done, total int) {
			if err := h.transport.SetProgress(ctx, p.RunID, done); err != nil {
				slog.Debug("failed to update progress", "id", p.RunID, "err", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	return d.Run(ctx, examples)
}
