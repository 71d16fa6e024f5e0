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

// Package pipeline implements the question answering core: passage
// retrieval, context assembly, reciprocal rank scoring and the
// thresholded answer decision.
package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// NotFoundAnswer is returned in place of an extracted answer when there is
// no context to read from or the reader is not confident enough.
const NotFoundAnswer = "Answer is not found."

// Retriever returns passages for a question ordered by relevance, at most size of them.
type Retriever interface {
	Retrieve(ctx context.Context, question string, index string, size int) ([]string, error)
}

// Reader extracts an answer span from a context.
type Reader interface {
	Read(ctx context.Context, question string, context string) (Candidate, error)
}

// Candidate is an answer span proposed by a [Reader] together with its confidence in [0, 1].
type Candidate struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Assemble flattens retrieved passages into a single context, keeping retrieval order.
// An empty passage list yields an empty context.
func Assemble(passages []string) string {
	return strings.Join(passages, " ")
}

// ReciprocalRank returns 1/k where k is the 1-indexed position of the first
// passage exactly equal to gold, or 0 if gold was not retrieved.
func ReciprocalRank(gold string, retrieved []string) float64 {
	for i, passage := range retrieved {
		if passage == gold {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// Decision is the outcome of reading a context.
type Decision struct {
	Text  string
	Found bool

	// Candidate is nil when the reader was not invoked.
	Candidate *Candidate
}

// Decide reads context with r and returns the answer text, or [NotFoundAnswer]
// if the context is empty or the candidate score does not exceed threshold.
func Decide(ctx context.Context, r Reader, question, context string, threshold float64) (string, error) {
	d, err := decide(ctx, r, question, context, threshold)
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

func decide(ctx context.Context, r Reader, question, context string, threshold float64) (Decision, error) {
	if context == "" {
		return Decision{Text: NotFoundAnswer}, nil
	}

	c, err := r.Read(ctx, question, context)
	if err != nil {
		return Decision{}, fmt.Errorf("reader failed: %w", err)
	}

	// strictly greater, a candidate scoring exactly the threshold is rejected
	if c.Score > threshold {
		return Decision{Text: c.Text, Found: true, Candidate: &c}, nil
	}
	return Decision{Text: NotFoundAnswer, Candidate: &c}, nil
}

// Params are the pipeline hyperparameters.
type Params struct {
	IndexName   string
	ContextSize int
	Threshold   float64
}

// Result holds the answer produced for a single question.
type Result struct {
	Answer   string
	Found    bool
	Score    float64
	Passages int
}

type Pipeline struct {
	retriever Retriever
	reader    Reader
	params    Params
}

func New(retriever Retriever, reader Reader, params Params) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		reader:    reader,
		params:    params,
	}
}

func (p *Pipeline) Params() Params {
	return p.params
}

// Extract answers question from the passages retrieved for it.
func (p *Pipeline) Extract(ctx context.Context, question string) (Result, error) {
	passages, err := p.retriever.Retrieve(ctx, question, p.params.IndexName, p.params.ContextSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	d, err := decide(ctx, p.reader, question, Assemble(passages), p.params.Threshold)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Answer:   d.Text,
		Found:    d.Found,
		Passages: len(passages),
	}
	if d.Candidate != nil {
		res.Score = d.Candidate.Score
	}
	return res, nil
}

// RetrieverFunc adapts a function to the [Retriever] interface.
type RetrieverFunc func(ctx context.Context, question string, index string, size int) ([]string, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, question string, index string, size int) ([]string, error) {
	return f(ctx, question, index, size)
}

// ReaderFunc adapts a function to the [Reader] interface.
type ReaderFunc func(ctx context.Context, question string, context string) (Candidate, error)

func (f ReaderFunc) Read(ctx context.Context, question string, context string) (Candidate, error) {
	return f(ctx, question, context)
}
