package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alan-mat/exqa/internal/pipeline"
)

func TestAssemble(t *testing.T) {
	if got := pipeline.Assemble(nil); got != "" {
		t.Errorf("expected empty context, got '%s'", got)
	}
	if got := pipeline.Assemble([]string{}); got != "" {
		t.Errorf("expected empty context, got '%s'", got)
	}
	if got := pipeline.Assemble([]string{"a"}); got != "a" {
		t.Errorf("expected 'a', got '%s'", got)
	}
	if got := pipeline.Assemble([]string{"a", "b"}); got != "a b" {
		t.Errorf("expected 'a b', got '%s'", got)
	}
	if got := pipeline.Assemble([]string{"first passage.", "second", "third"}); got != "first passage. second third" {
		t.Errorf("retrieval order not preserved, got '%s'", got)
	}
}

func TestReciprocalRank(t *testing.T) {
	cases := []struct {
		name      string
		gold      string
		retrieved []string
		expected  float64
	}{
		{"answer second", "answer", []string{"dummy", "answer"}, 0.5},
		{"answer first and repeated", "answer", []string{"answer", "answer"}, 1},
		{"answer missing", "answer", []string{"dummy", "dummy"}, 0},
		{"empty retrieval", "answer", nil, 0},
		{"third of four", "c", []string{"a", "b", "c", "d"}, 1.0 / 3},
		{"prefix does not match", "answer", []string{"answer and more"}, 0},
		{"suffix does not match", "answer", []string{"the answer"}, 0},
		{"first occurrence counts", "x", []string{"a", "x", "b", "x"}, 0.5},
	}

	for _, c := range cases {
		got := pipeline.ReciprocalRank(c.gold, c.retrieved)
		if got != c.expected {
			t.Errorf("%s: expected '%v', got '%v'", c.name, c.expected, got)
		}
	}
}

func TestReciprocalRankPosition(t *testing.T) {
	retrieved := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i, gold := range retrieved {
		expected := 1 / float64(i+1)
		if got := pipeline.ReciprocalRank(gold, retrieved); got != expected {
			t.Errorf("gold at index %d, expected '%v', got '%v'", i, expected, got)
		}
	}
}

func TestDecideEmptyContext(t *testing.T) {
	called := false
	r := pipeline.ReaderFunc(func(ctx context.Context, question, context string) (pipeline.Candidate, error) {
		called = true
		return pipeline.Candidate{Text: "answer", Score: 1}, nil
	})

	got, err := pipeline.Decide(context.Background(), r, "question", "", 0.5)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != pipeline.NotFoundAnswer {
		t.Errorf("expected '%s', got '%s'", pipeline.NotFoundAnswer, got)
	}
	if called {
		t.Error("reader must not be invoked on an empty context")
	}
}

func TestDecideThreshold(t *testing.T) {
	cases := []struct {
		score     float64
		threshold float64
		expected  string
	}{
		{0.8, 0.5, "answer"},
		{0.3, 0.5, pipeline.NotFoundAnswer},
		{0.5, 0.5, pipeline.NotFoundAnswer},
		{0.5000001, 0.5, "answer"},
		{0, 0, pipeline.NotFoundAnswer},
	}

	for _, c := range cases {
		r := staticReader{pipeline.Candidate{Text: "answer", Score: c.score}}
		got, err := pipeline.Decide(context.Background(), r, "question", "some context", c.threshold)
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if got != c.expected {
			t.Errorf("score %v threshold %v: expected '%s', got '%s'", c.score, c.threshold, c.expected, got)
		}
	}
}

func TestDecideReaderError(t *testing.T) {
	readerErr := errors.New("inference failed")
	r := pipeline.ReaderFunc(func(ctx context.Context, question, context string) (pipeline.Candidate, error) {
		return pipeline.Candidate{}, readerErr
	})

	_, err := pipeline.Decide(context.Background(), r, "question", "context", 0.5)
	if !errors.Is(err, readerErr) {
		t.Errorf("expected reader error to propagate, got %v", err)
	}
}

func TestPipelineExtract(t *testing.T) {
	var gotIndex string
	var gotSize int
	retriever := pipeline.RetrieverFunc(func(ctx context.Context, question, index string, size int) ([]string, error) {
		gotIndex = index
		gotSize = size
		return []string{"example1", "example2"}, nil
	})

	var gotContext string
	reader := pipeline.ReaderFunc(func(ctx context.Context, question, context string) (pipeline.Candidate, error) {
		gotContext = context
		return pipeline.Candidate{Text: "answer", Score: 0.8}, nil
	})

	p := pipeline.New(retriever, reader, pipeline.Params{IndexName: "squad", ContextSize: 2, Threshold: 0.5})
	res, err := p.Extract(context.Background(), "question")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if gotIndex != "squad" || gotSize != 2 {
		t.Errorf("retriever called with index '%s' size %d", gotIndex, gotSize)
	}
	if gotContext != "example1 example2" {
		t.Errorf("reader got context '%s'", gotContext)
	}

	expected := pipeline.Result{Answer: "answer", Found: true, Score: 0.8, Passages: 2}
	if res != expected {
		t.Errorf("expected result '%+v', got '%+v'", expected, res)
	}
}

func TestPipelineExtractNoPassages(t *testing.T) {
	retriever := pipeline.RetrieverFunc(func(ctx context.Context, question, index string, size int) ([]string, error) {
		return []string{}, nil
	})
	reader := pipeline.ReaderFunc(func(ctx context.Context, question, context string) (pipeline.Candidate, error) {
		t.Error("reader must not be invoked without passages")
		return pipeline.Candidate{}, nil
	})

	p := pipeline.New(retriever, reader, pipeline.Params{IndexName: "squad", ContextSize: 2, Threshold: 0.5})
	res, err := p.Extract(context.Background(), "question")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Found || res.Answer != pipeline.NotFoundAnswer {
		t.Errorf("expected not found, got '%+v'", res)
	}
}

func TestPipelineExtractRetrieverError(t *testing.T) {
	retrieveErr := errors.New("connection refused")
	retriever := pipeline.RetrieverFunc(func(ctx context.Context, question, index string, size int) ([]string, error) {
		return nil, retrieveErr
	})

	p := pipeline.New(retriever, staticReader{}, pipeline.Params{})
	_, err := p.Extract(context.Background(), "question")
	if !errors.Is(err, retrieveErr) {
		t.Errorf("expected retriever error to propagate, got %v", err)
	}
}

type staticReader struct {
	candidate pipeline.Candidate
}

func (r staticReader) Read(ctx context.Context, question, context string) (pipeline.Candidate, error) {
	return r.candidate, nil
}
