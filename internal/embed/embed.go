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

// Package embed turns questions into dense vectors for vector store retrieval.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-mat/exqa/internal/config"
)

var (
	ErrInvalidEmbedderType = errors.New("no embedder found for given provider")
	ErrEmptyEmbedding      = errors.New("provider returned no embedding")
)

type Embedder interface {
	EmbedQuery(ctx context.Context, q string) ([]float32, error)
}

func New(ctx context.Context, conf config.EmbedderConfig) (Embedder, error) {
	switch conf.Provider {
	case config.EmbedderOpenAI:
		return NewOpenAIEmbedder(conf), nil
	case config.EmbedderJina:
		return NewJinaEmbedder(conf), nil
	case config.EmbedderGemini:
		e, err := NewGeminiEmbedder(ctx, conf)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini embedder: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidEmbedderType, conf.Provider)
	}
}
