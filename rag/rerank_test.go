package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "dsa-agent/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLexicalRerankerPrefersTermMatches(t *testing.T) {
	docs := []Document{
		{Text: "Arrays store elements in contiguous memory.", Score: 0.80, Metadata: map[string]string{"page": "1"}},
		{Text: "Dijkstra's algorithm finds shortest paths in weighted graphs.", Score: 0.78},
		{Text: "Hash tables map keys to buckets.", Score: 0.79},
	}
	out, err := NewLexicalReranker().Rerank(context.Background(), "shortest paths dijkstra", docs, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Text, "Dijkstra")
	assert.GreaterOrEqual(t, out[0].Score, out[1].Score)

	out[0].Metadata["mutated"] = "yes"
	for _, d := range docs {
		assert.NotContains(t, d.Metadata, "mutated", "input metadata is never shared")
	}
}

func TestLexicalRerankerEdgeCases(t *testing.T) {
	out, err := NewLexicalReranker().Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = NewLexicalReranker().Rerank(context.Background(), "q", manyDocs(3), 10)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestCohereReranker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req cohereRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.TopN)
		assert.Len(t, req.Documents, 3)
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.9},{"index":7,"relevance_score":0.5},{"index":0,"relevance_score":0.4}]}`))
	}))
	defer srv.Close()

	docs := []Document{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	rr := NewCohereReranker(srv.URL+"/", "secret", "rerank-english-v3.0", time.Second, zap.NewNop())
	out, err := rr.Rerank(context.Background(), "q", docs, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].Text)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, "a", out[1].Text)
}

func TestCohereRerankerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	rr := NewCohereReranker(srv.URL, "x", "m", time.Second, zap.NewNop())
	_, err := rr.Rerank(context.Background(), "q", []Document{{Text: "a"}}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRerank)
}
