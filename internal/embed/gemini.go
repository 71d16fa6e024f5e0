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
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-embedding-exp-03-07"

type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	vectorDims *int32
}

func NewGeminiEmbedder(ctx context.Context, conf config.EmbedderConfig) (*GeminiEmbedder, error) {
	apiKey := conf.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	e := &GeminiEmbedder{
		client: c,
		model:  conf.Model,
	}
	if e.model == "" {
		e.model = defaultGeminiModel
	}
	if conf.Dimensions > 0 {
		dims := int32(conf.Dimensions)
		e.vectorDims = &dims
	}
	return e, nil
}

func (e GeminiEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	embedConfig := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: e.vectorDims,
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(q), embedConfig)
	if err != nil {
		return nil, err
	}

	if len(res.Embeddings) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Embeddings[0].Values, nil
}
