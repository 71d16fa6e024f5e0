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

package transport

import (
	"context"
	"errors"
	"time"

	"github.com/alan-mat/exqa/internal/eval"
)

var (
	TraceExpiry = time.Hour * 24

	ErrNotFound = errors.New("run not found")
)

// Transport stores the state and results of evaluation runs shared between
// the server, the CLI and the workers.
type Transport interface {
	SetTrace(ctx context.Context, trace *RunTrace) error
	GetTrace(ctx context.Context, runID string) (*RunTrace, error)
	SetProgress(ctx context.Context, runID string, done int) error

	SetReport(ctx context.Context, runID string, report *eval.Report) error
	GetReport(ctx context.Context, runID string) (*eval.Report, error)
}

type RunTrace struct {
	ID          string `redis:"id" json:"id"`
	Status      int    `redis:"status" json:"-"`
	QueuedAt    int64  `redis:"queued_at" json:"queued_at"`
	StartedAt   int64  `redis:"started_at" json:"started_at"`
	CompletedAt int64  `redis:"completed_at" json:"completed_at"`

	Mode        string `redis:"mode" json:"mode"`
	DatasetPath string `redis:"dataset_path" json:"dataset_path"`
	Samples     int    `redis:"samples" json:"samples"`
	Done        int    `redis:"done" json:"done"`
	Error       string `redis:"error" json:"error,omitempty"`
}

type TraceStatus int

const (
	TraceStatusUnspecified = iota
	TraceStatusQueued
	TraceStatusRunning
	TraceStatusCompleted
	TraceStatusFailed
)

func (s TraceStatus) String() string {
	switch s {
	case TraceStatusQueued:
		return "queued"
	case TraceStatusRunning:
		return "running"
	case TraceStatusCompleted:
		return "completed"
	case TraceStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// StatusName returns the trace status as a lower case word.
func (t *RunTrace) StatusName() string {
	return TraceStatus(t.Status).String()
}
