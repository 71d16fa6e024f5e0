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

	"github.com/alan-mat/exqa/internal/transport"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeEvaluate = "exqa:evaluate"
)

type EvaluatePayload struct {
	RunID       string
	Mode        string
	DatasetPath string
	ValSetSize  int
	ContextSize int
	IndexName   string
	Model       string
	Workers     int
}

func NewEvaluateTask(p EvaluatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEvaluate, payload, asynq.TaskID(p.RunID), asynq.MaxRetry(0)), nil
}

// Enqueuer is implemented by [asynq.Client].
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueEvaluation assigns the run an ID if it has none, records a queued
// trace and queues the run. It returns the run ID.
func EnqueueEvaluation(ctx context.Context, e Enqueuer, t transport.Transport, p EvaluatePayload) (string, error) {
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}

	task, err := NewEvaluateTask(p)
	if err != nil {
		return "", fmt.Errorf("failed to create evaluate task: %w", err)
	}

	trace := &transport.RunTrace{
		ID:          p.RunID,
		Status:      transport.TraceStatusQueued,
		QueuedAt:    time.Now().UnixNano(),
		Mode:        p.Mode,
		DatasetPath: p.DatasetPath,
	}
	if err := t.SetTrace(ctx, trace); err != nil {
		return "", fmt.Errorf("failed to set trace: %w", err)
	}

	if _, err := e.EnqueueContext(ctx, task); err != nil {
		trace.Status = transport.TraceStatusFailed
		trace.Error = err.Error()
		if err := t.SetTrace(ctx, trace); err != nil {
			slog.Error("failed to set trace", "id", p.RunID, "err", err)
		}
		return "", fmt.Errorf("failed to enqueue evaluate task: %w", err)
	}

	slog.Info("enqueued evaluation", "id", p.RunID, "mode", p.Mode, "dataset", p.DatasetPath)
	return p.RunID, nil
}
