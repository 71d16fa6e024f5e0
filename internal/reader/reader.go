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

// Package reader calls an extractive question answering model served over HTTP.
package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/http"
	"github.com/alan-mat/exqa/internal/pipeline"
)

var ErrEmptyResponse = errors.New("inference endpoint returned no answer")

type answerResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// HTTPReader implements [pipeline.Reader] against an endpoint speaking the
// Hugging Face Inference API question-answering protocol.
type HTTPReader struct {
	client http.Client
	model  string
}

func New(conf config.ReaderConfig, model string) *HTTPReader {
	c := http.NewClient(
		conf.Endpoint,
		http.WithApiKey(conf.APIKey),
		http.WithTimeout(conf.Timeout),
		http.WithMaxRetries(conf.MaxRetries),
	)
	return &HTTPReader{
		client: c,
		model:  model,
	}
}

func (r *HTTPReader) Model() string {
	return r.model
}

func (r *HTTPReader) Read(ctx context.Context, question string, context string) (pipeline.Candidate, error) {
	requestData := map[string]any{
		"inputs": map[string]string{
			"question": question,
			"context":  context,
		},
	}

	var raw json.RawMessage
	err := r.client.Request(ctx, http.MethodPost, "/models/"+r.model, requestData, &raw)
	if err != nil {
		return pipeline.Candidate{}, fmt.Errorf("question answering request failed: %w", err)
	}

	resp, err := decodeAnswer(raw)
	if err != nil {
		return pipeline.Candidate{}, err
	}

	return pipeline.Candidate{
		Text:  resp.Answer,
		Score: resp.Score,
	}, nil
}

// decodeAnswer accepts a single answer object or a list of them ranked by
// score, as returned when top_k is greater than one.
func decodeAnswer(raw json.RawMessage) (*answerResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyResponse
	}

	if raw[0] == '[' {
		var list []*answerResponse
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to deserialize answer response: %w", err)
		}
		if len(list) == 0 || list[0] == nil {
			return nil, ErrEmptyResponse
		}
		return list[0], nil
	}

	var resp answerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to deserialize answer response: %w", err)
	}
	return &resp, nil
}
