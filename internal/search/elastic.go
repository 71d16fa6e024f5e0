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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/elastic/go-elasticsearch/v8"
)

const backendElastic = "elasticsearch"

type ElasticRetriever struct {
	client    *elasticsearch.Client
	transport *http.Transport
	textField string
}

// NewElasticRetriever connects to the cluster identified by conf, either a
// cloud id or a list of node addresses. The connection is not checked until
// the first query.
func NewElasticRetriever(conf config.ElasticConfig, textField string) (*ElasticRetriever, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if conf.Timeout > 0 {
		t.ResponseHeaderTimeout = conf.Timeout
	}

	esConf := elasticsearch.Config{
		CloudID:   conf.CloudID,
		Addresses: conf.Addresses,
		Username:  conf.User,
		Password:  conf.Password,
		APIKey:    conf.APIKey,
		Transport: t,

		// connectivity retries happen in WithRetry
		DisableRetry: true,
	}

	c, err := elasticsearch.NewClient(esConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	if textField == "" {
		textField = "context"
	}
	return &ElasticRetriever{
		client:    c,
		transport: t,
		textField: textField,
	}, nil
}

// Close releases the idle connections held by the client.
func (r *ElasticRetriever) Close() error {
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Retrieve runs a full text match query for question against the text field
// of index and returns the text of the top size hits in relevance order.
func (r *ElasticRetriever) Retrieve(ctx context.Context, question string, index string, size int) ([]string, error) {
	if size <= 0 {
		return []string{}, nil
	}

	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				r.textField: question,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(index),
		r.client.Search.WithBody(&buf),
		r.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, &ConnectivityError{Backend: backendElastic, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		statusErr := fmt.Errorf("(HTTP Error %d) %s", res.StatusCode, body)

		switch {
		case res.StatusCode == http.StatusUnauthorized,
			res.StatusCode == http.StatusForbidden,
			res.StatusCode >= 500:
			return nil, &ConnectivityError{Backend: backendElastic, Err: statusErr}
		default:
			return nil, &QueryError{Index: index, Err: statusErr}
		}
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to deserialize search response: %w", err)
	}

	passages := make([]string, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		text, ok := hit.Source[r.textField].(string)
		if !ok {
			slog.Warn("skipping hit without text field", "index", index, "field", r.textField)
			continue
		}
		passages = append(passages, text)
	}
	return passages, nil
}
