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

package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/embed"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const backendQdrant = "qdrant"

// QdrantRetriever answers passage queries from a qdrant collection by
// embedding the question and running a nearest neighbour query.
// The index name is used as the collection name.
type QdrantRetriever struct {
	client       *qdrant.Client
	embedder     embed.Embedder
	payloadField string
}

func NewQdrantRetriever(conf config.QdrantConfig, embedder embed.Embedder) (*QdrantRetriever, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   conf.Host,
		Port:   conf.Port,
		APIKey: conf.APIKey,
		UseTLS: conf.UseTLS,
	})
	if err != nil {
		return nil, &ConnectivityError{Backend: backendQdrant, Err: err}
	}

	r := &QdrantRetriever{
		client:       c,
		embedder:     embedder,
		payloadField: conf.PayloadField,
	}
	if r.payloadField == "" {
		r.payloadField = "text"
	}
	return r, nil
}

func (r *QdrantRetriever) Retrieve(ctx context.Context, question string, index string, size int) ([]string, error) {
	if size <= 0 {
		return []string{}, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	limit := uint64(size)
	res, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: index,
		Query:          qdrant.NewQuery(vec...),
		WithPayload:    qdrant.NewWithPayload(true),
		Limit:          &limit,
	})
	if err != nil {
		return nil, classifyQdrantError(index, err)
	}

	passages := make([]string, 0, len(res))
	for _, sp := range res {
		v, ok := sp.Payload[r.payloadField]
		if !ok || v.GetStringValue() == "" {
			slog.Warn("skipping point without text payload", "collection", index, "field", r.payloadField)
			continue
		}
		passages = append(passages, v.GetStringValue())
	}
	return passages, nil
}

func (r *QdrantRetriever) Close() error {
	return r.client.Close()
}

func classifyQdrantError(index string, err error) error {
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument:
		return &QueryError{Index: index, Err: err}
	default:
		return &ConnectivityError{Backend: backendQdrant, Err: err}
	}
}
