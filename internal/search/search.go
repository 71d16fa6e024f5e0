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

// Package search implements passage retrieval against the supported search backends.
package search

import (
	"context"
	"fmt"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/embed"
	"github.com/alan-mat/exqa/internal/pipeline"
)

// New returns the retriever for the configured backend, wrapped with retries.
func New(ctx context.Context, conf *config.Config) (pipeline.Retriever, error) {
	switch conf.Retriever.Backend {
	case config.BackendElasticsearch:
		r, err := NewElasticRetriever(conf.Elastic, conf.Hyperparams.TextField)
		if err != nil {
			return nil, err
		}
		return WithRetry(r, conf.Elastic.MaxRetries), nil
	case config.BackendQdrant:
		e, err := embed.New(ctx, conf.Embedder)
		if err != nil {
			return nil, err
		}
		r, err := NewQdrantRetriever(conf.Qdrant, e)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown search backend '%s'", conf.Retriever.Backend)
	}
}
