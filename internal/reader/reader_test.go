package reader_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/pipeline"
	"github.com/alan-mat/exqa/internal/reader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T, handler http.HandlerFunc) *reader.HTTPReader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return reader.New(config.ReaderConfig{
		Endpoint:   srv.URL,
		APIKey:     "hf_test",
		Timeout:    time.Second,
		MaxRetries: 1,
	}, "deepset/roberta-base-squad2")
}

func TestReadObjectResponse(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/models/deepset/roberta-base-squad2", req.URL.Path)
		assert.Equal(t, "Bearer hf_test", req.Header.Get("Authorization"))

		var body struct {
			Inputs struct {
				Question string `json:"question"`
				Context  string `json:"context"`
			} `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "Who wrote it?", body.Inputs.Question)
		assert.Equal(t, "It was written by Ada.", body.Inputs.Context)

		w.Write([]byte(`{"score":0.91,"start":18,"end":21,"answer":"Ada"}`))
	})

	c, err := r.Read(context.Background(), "Who wrote it?", "It was written by Ada.")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Candidate{Text: "Ada", Score: 0.91}, c)
}

func TestReadListResponse(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`[{"score":0.7,"answer":"first"},{"score":0.2,"answer":"second"}]`))
	})

	c, err := r.Read(context.Background(), "q", "ctx")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Candidate{Text: "first", Score: 0.7}, c)
}

func TestReadEmptyList(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := r.Read(context.Background(), "q", "ctx")
	assert.True(t, errors.Is(err, reader.ErrEmptyResponse))
}

func TestReadEndpointError(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model crashed"}`))
	})

	_, err := r.Read(context.Background(), "q", "ctx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}
