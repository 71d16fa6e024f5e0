package search

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyQdrantError(t *testing.T) {
	tests := []struct {
		code      codes.Code
		wantQuery bool
	}{
		{codes.NotFound, true},
		{codes.InvalidArgument, true},
		{codes.Unavailable, false},
		{codes.Unauthenticated, false},
		{codes.PermissionDenied, false},
		{codes.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := classifyQdrantError("passages", status.Error(tt.code, "boom"))
			assert.Equal(t, tt.wantQuery, IsQuery(err))
			assert.Equal(t, !tt.wantQuery, IsConnectivity(err))
		})
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestQdrantRetrieve(t *testing.T) {
	r := &QdrantRetriever{embedder: failingEmbedder{}, payloadField: "text"}

	passages, err := r.Retrieve(context.Background(), "q", "passages", 0)
	require.NoError(t, err)
	assert.Empty(t, passages)

	_, err = r.Retrieve(context.Background(), "q", "passages", 3)
	assert.ErrorContains(t, err, "quota exceeded")
}

type staticEmbedder struct{}

func (staticEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type pointsServer struct {
	qdrant.UnimplementedPointsServer

	requests chan *qdrant.QueryPoints
	result   []*qdrant.ScoredPoint
	err      error
}

func (s *pointsServer) Query(ctx context.Context, req *qdrant.QueryPoints) (*qdrant.QueryResponse, error) {
	s.requests <- req
	if s.err != nil {
		return nil, s.err
	}
	return &qdrant.QueryResponse{Result: s.result}, nil
}

func newQdrantServer(t *testing.T, srv *pointsServer) *QdrantRetriever {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	qdrant.RegisterPointsServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	c, err := qdrant.NewClient(&qdrant.Config{
		Host:                   "127.0.0.1",
		Port:                   lis.Addr().(*net.TCPAddr).Port,
		SkipCompatibilityCheck: true,
	})
	require.NoError(t, err)

	r := &QdrantRetriever{client: c, embedder: staticEmbedder{}, payloadField: "text"}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestQdrantRetrieveScoredPoints(t *testing.T) {
	srv := &pointsServer{
		requests: make(chan *qdrant.QueryPoints, 1),
		result: []*qdrant.ScoredPoint{
			{Id: qdrant.NewIDNum(3), Score: 0.9, Payload: map[string]*qdrant.Value{"text": qdrant.NewValueString("best passage")}},
			{Id: qdrant.NewIDNum(7), Score: 0.8, Payload: map[string]*qdrant.Value{"title": qdrant.NewValueString("no text")}},
			{Id: qdrant.NewIDNum(1), Score: 0.5, Payload: map[string]*qdrant.Value{"text": qdrant.NewValueString("second passage")}},
		},
	}
	r := newQdrantServer(t, srv)

	passages, err := r.Retrieve(context.Background(), "Who wrote it?", "squad_passages", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"best passage", "second passage"}, passages)

	req := <-srv.requests
	assert.Equal(t, "squad_passages", req.GetCollectionName())
	assert.Equal(t, uint64(3), req.GetLimit())
	assert.True(t, req.GetWithPayload().GetEnable())
}

func TestQdrantRetrieveMissingCollection(t *testing.T) {
	srv := &pointsServer{
		requests: make(chan *qdrant.QueryPoints, 1),
		err:      status.Error(codes.NotFound, "collection squad_passages not found"),
	}
	r := newQdrantServer(t, srv)

	_, err := r.Retrieve(context.Background(), "q", "squad_passages", 3)
	assert.True(t, IsQuery(err), "expected query error, got %v", err)
}
