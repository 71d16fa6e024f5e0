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

package embed

import (
	"context"
	"os"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/http"
)

const (
	jinaEndpoint     = "https://api.jina.ai"
	defaultJinaModel = "jina-embeddings-v3"
)

type embeddingResponse struct {
	Model     string `json:"model"`
	UsageInfo struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type JinaEmbedder struct {
	client     http.Client
	model      string
	vectorDims int
}

func NewJinaEmbedder(conf config.EmbedderConfig) *JinaEmbedder {
	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = jinaEndpoint
	}
	apiKey := conf.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("JINA_API_KEY")
	}

	c := http.NewClient(
		endpoint,
		http.WithMaxRetries(3),
		http.WithApiKey(apiKey),
	)
	e := &JinaEmbedder{
		client:     c,
		model:      conf.Model,
		vectorDims: conf.Dimensions,
	}
	if e.model == "" {
		e.model = defaultJinaModel
	}
	if e.vectorDims == 0 {
		e.vectorDims = 1024
	}
	return e
}

func (e JinaEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	requestData := map[string]any{
		"input":      []string{q},
		"model":      e.model,
		"task":       "retrieval.query",
		"dimensions": e.vectorDims,
	}

	var resp embeddingResponse
	if err := e.client.Request(ctx, http.MethodPost, "/v1/embeddings", requestData, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
