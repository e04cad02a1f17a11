package parser_test

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"cvision/internal/config"
	"cvision/internal/parser"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 编译期检查
var _ embedding.Embedder = (*parser.OpenAIEmbedder)(nil)

func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req parser.EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.Dimensions)

		// 故意倒序返回，客户端应按 index 排序
		resp := parser.EmbeddingResponse{Object: "list", Model: req.Model}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, parser.EmbeddingDataEntry{
				Object:    "embedding",
				Index:     i,
				Embedding: []float64{float64(i + 1), 0, 0, float64(i + 1)},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIEmbedderEmbedStrings(t *testing.T) {
	srv := newEmbeddingServer(t)
	defer srv.Close()

	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Dimensions: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, e.GetDimensions())

	vecs, err := e.EmbedStrings(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	s := 1 / math.Sqrt2
	assert.InDeltaSlice(t, []float64{s, 0, 0, s}, vecs[0], 1e-9)
	assert.InDeltaSlice(t, []float64{s, 0, 0, s}, vecs[1], 1e-9)
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k"})
	require.NoError(t, err)
	vecs, err := e.EmbedStrings(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestOpenAIEmbedderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	e, err := parser.NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.EmbedStrings(t.Context(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestNormalize(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, parser.Normalize([]float64{3, 4}), 1e-12)
	assert.Equal(t, []float64{0, 0}, parser.Normalize([]float64{0, 0}))
}
