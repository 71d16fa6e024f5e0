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
	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	vectorDims int
}

func NewOpenAIEmbedder(conf config.EmbedderConfig) *OpenAIEmbedder {
	apiKey := conf.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return NewOpenAIEmbedderWithClient(openai.NewClient(apiKey), conf)
}

func NewOpenAIEmbedderWithClient(c *openai.Client, conf config.EmbedderConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client:     c,
		model:      conf.Model,
		vectorDims: conf.Dimensions,
	}
	if e.model == "" {
		e.model = defaultOpenAIModel
	}
	return e
}

func (e OpenAIEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	openaiReq := &openai.EmbeddingRequestStrings{
		Input:          []string{q},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.vectorDims,
	}

	res, err := e.client.CreateEmbeddings(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	if len(res.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Data[0].Embedding, nil
}
