package search_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newElasticServer(t *testing.T, handler http.HandlerFunc) *search.ElasticRetriever {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := search.NewElasticRetriever(config.ElasticConfig{
		Addresses: []string{srv.URL},
		User:      "elastic",
		Password:  "changeme",
	}, "context")
	require.NoError(t, err)
	return r
}

func writeHits(w http.ResponseWriter, sources ...map[string]any) {
	hits := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		hits = append(hits, map[string]any{"_source": s})
	}
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"hits": map[string]any{"hits": hits},
	})
}

func TestElasticRetrieve(t *testing.T) {
	r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/squad_dedup_validation/_search", req.URL.Path)
		assert.Equal(t, "3", req.URL.Query().Get("size"))

		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "elastic", user)
		assert.Equal(t, "changeme", pass)

		var body struct {
			Query struct {
				Match map[string]string `json:"match"`
			} `json:"query"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, map[string]string{"context": "Who wrote it?"}, body.Query.Match)

		writeHits(w,
			map[string]any{"title": "a", "context": "first passage"},
			map[string]any{"title": "b", "context": "second passage"},
			map[string]any{"title": "c", "context": "third passage"},
		)
	})

	passages, err := r.Retrieve(context.Background(), "Who wrote it?", "squad_dedup_validation", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first passage", "second passage", "third passage"}, passages)
}

func TestElasticRetrieveSkipsHitsWithoutField(t *testing.T) {
	r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
		writeHits(w,
			map[string]any{"title": "no text"},
			map[string]any{"context": "kept"},
		)
	})

	passages, err := r.Retrieve(context.Background(), "q", "idx", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, passages)
}

func TestElasticRetrieveZeroSize(t *testing.T) {
	called := false
	r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		writeHits(w)
	})

	passages, err := r.Retrieve(context.Background(), "q", "idx", 0)
	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.False(t, called)
}

func TestElasticRetrieveMissingIndex(t *testing.T) {
	r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
	})

	_, err := r.Retrieve(context.Background(), "q", "missing", 3)
	require.Error(t, err)

	var qerr *search.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "missing", qerr.Index)
	assert.Contains(t, err.Error(), "index_not_found_exception")
	assert.False(t, search.IsConnectivity(err))
}

func TestElasticRetrieveConnectivity(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
		{"unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := r.Retrieve(context.Background(), "q", "idx", 3)
			assert.True(t, search.IsConnectivity(err), "expected connectivity error, got %v", err)
		})
	}
}

func TestElasticRetrieveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	r, err := search.NewElasticRetriever(config.ElasticConfig{Addresses: []string{addr}}, "")
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", "idx", 3)
	assert.True(t, search.IsConnectivity(err), "expected connectivity error, got %v", err)
}

func TestElasticRetrieverClose(t *testing.T) {
	r := newElasticServer(t, func(w http.ResponseWriter, req *http.Request) {
		writeHits(w, map[string]any{"context": "passage"})
	})

	_, err := r.Retrieve(context.Background(), "q", "idx", 1)
	require.NoError(t, err)

	var c io.Closer = r
	assert.NoError(t, c.Close())

	// closing only drops idle connections
	passages, err := r.Retrieve(context.Background(), "q", "idx", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"passage"}, passages)
}
