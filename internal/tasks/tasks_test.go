package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alan-mat/exqa/internal/eval"
	"github.com/alan-mat/exqa/internal/metrics"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/tasks"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mu       sync.Mutex
	traces   map[string]transport.RunTrace
	reports  map[string]*eval.Report
	progress map[string]int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		traces:   make(map[string]transport.RunTrace),
		reports:  make(map[string]*eval.Report),
		progress: make(map[string]int),
	}
}

func (t *mockTransport) SetTrace(ctx context.Context, trace *transport.RunTrace) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces[trace.ID] = *trace
	return nil
}

func (t *mockTransport) GetTrace(ctx context.Context, runID string) (*transport.RunTrace, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trace, ok := t.traces[runID]
	if !ok {
		return nil, transport.ErrNotFound
	}
	return &trace, nil
}

func (t *mockTransport) SetProgress(ctx context.Context, runID string, done int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[runID] = max(t.progress[runID], done)
	return nil
}

func (t *mockTransport) SetReport(ctx context.Context, runID string, report *eval.Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports[runID] = report
	return nil
}

func (t *mockTransport) GetReport(ctx context.Context, runID string) (*eval.Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.reports[runID]
	if !ok {
		return nil, transport.ErrNotFound
	}
	return r, nil
}

type mockEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validation.jsonl")
	data := `{"id":"1","context":"Ada wrote the first program.","question":"Who wrote the first program?","answers":{"text":["Ada"],"answer_start":[0]}}
{"id":"2","context":"Turing proposed the test.","question":"Who proposed the test?","answers":{"text":["Turing"],"answer_start":[0]}}
{"id":"3","context":"Hopper built a compiler.","question":"Who built a compiler?","answers":{"text":["Hopper"],"answer_start":[0]}}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

// goldRetriever ranks the gold context of every question first.
var goldRetriever = pipeline.RetrieverFunc(func(ctx context.Context, question, index string, size int) ([]string, error) {
	golds := map[string]string{
		"Who wrote the first program?": "Ada wrote the first program.",
		"Who proposed the test?":       "Turing proposed the test.",
		"Who built a compiler?":        "Hopper built a compiler.",
	}
	return []string{golds[question], "unrelated"}[:min(size, 2)], nil
})

func newEvaluateTask(t *testing.T, p tasks.EvaluatePayload) *asynq.Task {
	t.Helper()
	task, err := tasks.NewEvaluateTask(p)
	require.NoError(t, err)
	return task
}

func TestProcessEvaluateTask(t *testing.T) {
	tr := newMockTransport()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := tasks.NewTaskHandler(tr, goldRetriever, nil, m)

	task := newEvaluateTask(t, tasks.EvaluatePayload{
		RunID:       "run-1",
		Mode:        "retrieval",
		DatasetPath: writeDataset(t),
		ValSetSize:  2,
		ContextSize: 2,
		IndexName:   "squad_dedup_validation",
	})
	require.NoError(t, h.ProcessTask(context.Background(), task))

	trace, err := tr.GetTrace(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", trace.StatusName())
	assert.Equal(t, 2, trace.Samples)
	assert.Equal(t, 2, trace.Done)
	assert.NotZero(t, trace.CompletedAt)

	report, err := tr.GetReport(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, eval.ModeRetrieval, report.Mode)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1.0, report.Retrieval.MRR)
	assert.Equal(t, 2, tr.progress["run-1"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationRuns.WithLabelValues("retrieval", "completed")))
}

func TestProcessEvaluateTaskReader(t *testing.T) {
	tr := newMockTransport()
	var models []string
	newReader := func(model string) pipeline.Reader {
		models = append(models, model)
		return pipeline.ReaderFunc(func(ctx context.Context, question, context string) (pipeline.Candidate, error) {
			return pipeline.Candidate{Text: "Ada", Score: 0.9}, nil
		})
	}
	h := tasks.NewTaskHandler(tr, goldRetriever, newReader, nil)

	task := newEvaluateTask(t, tasks.EvaluatePayload{
		RunID:       "run-2",
		Mode:        "reader",
		DatasetPath: writeDataset(t),
		Model:       "distilbert-base-uncased-distilled-squad",
	})
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, []string{"distilbert-base-uncased-distilled-squad"}, models)
	report, err := tr.GetReport(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Samples)
	assert.InDelta(t, 100.0/3, report.Reader.ExactMatch, 1e-9)
}

func TestProcessEvaluateTaskFailure(t *testing.T) {
	tr := newMockTransport()
	failing := pipeline.RetrieverFunc(func(ctx context.Context, question, index string, size int) ([]string, error) {
		return nil, errors.New("cluster unavailable")
	})
	h := tasks.NewTaskHandler(tr, failing, nil, nil)

	task := newEvaluateTask(t, tasks.EvaluatePayload{
		RunID:       "run-3",
		Mode:        "retrieval",
		DatasetPath: writeDataset(t),
		ContextSize: 1,
	})
	err := h.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	trace, err := tr.GetTrace(context.Background(), "run-3")
	require.NoError(t, err)
	assert.Equal(t, "failed", trace.StatusName())
	assert.Contains(t, trace.Error, "cluster unavailable")

	_, err = tr.GetReport(context.Background(), "run-3")
	assert.ErrorIs(t, err, transport.ErrNotFound)
}

func TestProcessEvaluateTaskInvalid(t *testing.T) {
	h := tasks.NewTaskHandler(newMockTransport(), goldRetriever, nil, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeEvaluate, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask("exqa:unknown", nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), newEvaluateTask(t, tasks.EvaluatePayload{
		RunID:       "run-4",
		Mode:        "ranking",
		DatasetPath: writeDataset(t),
	}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorContains(t, err, "invalid evaluation mode")
}

func TestEnqueueEvaluation(t *testing.T) {
	tr := newMockTransport()
	e := &mockEnqueuer{}

	id, err := tasks.EnqueueEvaluation(context.Background(), e, tr, tasks.EvaluatePayload{
		Mode:        "e2e",
		DatasetPath: "validation.json",
		ContextSize: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, e.tasks, 1)
	assert.Equal(t, tasks.TypeEvaluate, e.tasks[0].Type())

	var p tasks.EvaluatePayload
	require.NoError(t, json.Unmarshal(e.tasks[0].Payload(), &p))
	assert.Equal(t, id, p.RunID)
	assert.Equal(t, 3, p.ContextSize)

	trace, err := tr.GetTrace(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "queued", trace.StatusName())
	assert.Equal(t, "e2e", trace.Mode)
}

func TestEnqueueEvaluationFailure(t *testing.T) {
	tr := newMockTransport()
	e := &mockEnqueuer{err: errors.New("redis down")}

	_, err := tasks.EnqueueEvaluation(context.Background(), e, tr, tasks.EvaluatePayload{RunID: "run-5", Mode: "retrieval"})
	assert.ErrorContains(t, err, "redis down")

	trace, err := tr.GetTrace(context.Background(), "run-5")
	require.NoError(t, err)
	assert.Equal(t, "failed", trace.StatusName())
}
