package search_test

import (
	"context"
	"io"
	"testing"

	"github.com/alan-mat/exqa/internal/config"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	conf := &config.Config{
		Retriever:   config.RetrieverConfig{Backend: config.BackendElasticsearch},
		Elastic:     config.ElasticConfig{Addresses: []string{"http://localhost:9200"}},
		Hyperparams: config.HyperparamsConfig{TextField: "context"},
	}

	r, err := search.New(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &search.ElasticRetriever{}, r)
	assert.Implements(t, (*io.Closer)(nil), r)

	conf.Elastic.MaxRetries = 2
	r, err = search.New(context.Background(), conf)
	require.NoError(t, err)
	_, plain := r.(*search.ElasticRetriever)
	assert.False(t, plain)
	c, ok := r.(io.Closer)
	require.True(t, ok)
	assert.NoError(t, c.Close())

	conf.Retriever.Backend = "solr"
	_, err = search.New(context.Background(), conf)
	assert.Error(t, err)
}
