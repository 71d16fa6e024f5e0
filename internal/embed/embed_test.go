package embed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/embed"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIEmbedder(t *testing.T, handler http.HandlerFunc) *embed.OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	return embed.NewOpenAIEmbedderWithClient(openai.NewClientWithConfig(cfg), config.EmbedderConfig{
		Dimensions: 3,
	})
}

func TestOpenAIEmbedQuery(t *testing.T) {
	e := newOpenAIEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"Who wrote it?"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 3, req.Dimensions)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`))
	})

	vec, err := e.EmbedQuery(context.Background(), "Who wrote it?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIEmbedQueryEmpty(t *testing.T) {
	e := newOpenAIEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	})

	_, err := e.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, embed.ErrEmptyEmbedding)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := embed.New(context.Background(), config.EmbedderConfig{Provider: "cohere"})
	assert.True(t, errors.Is(err, embed.ErrInvalidEmbedderType))
}

func TestJinaEmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer jina_test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "retrieval.query", req["task"])
		assert.Equal(t, "jina-embeddings-v3", req["model"])
		assert.EqualValues(t, 8, req["dimensions"])

		w.Write([]byte(`{"model":"jina-embeddings-v3","data":[{"index":0,"embedding":[0.5,0.25]}]}`))
	}))
	defer srv.Close()

	e, err := embed.New(context.Background(), config.EmbedderConfig{
		Provider:   config.EmbedderJina,
		APIKey:     "jina_test",
		Dimensions: 8,
		Endpoint:   srv.URL,
	})
	require.NoError(t, err)

	vec, err := e.EmbedQuery(context.Background(), "Who wrote it?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}
