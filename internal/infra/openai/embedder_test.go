package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingServer は入力テキストの長さを第1要素に持つベクトルを返す
type embeddingServer struct {
	mu       sync.Mutex
	requests []embeddingRequest
	status   int
}

func (s *embeddingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		s.mu.Lock()
		s.requests = append(s.requests, req)
		status := s.status
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}

		// 逆順で返しても index で並べ替えられることを確認する
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 0.5},
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}
}

// runeBudget は1ルーンを1トークンとして扱う
type runeBudget struct{}

func (runeBudget) CountTokens(text string) int { return len([]rune(text)) }

func (runeBudget) Truncate(text string, maxTokens int) string {
	r := []rune(text)
	if len(r) <= maxTokens {
		return text
	}
	return string(r[:maxTokens])
}

func newTestEmbedder(t *testing.T, srv *embeddingServer, opts ...EmbedderOption) *Embedder {
	t.Helper()
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	opts = append([]EmbedderOption{
		WithEmbeddingBaseURL(server.URL),
		WithEmbeddingModel("test-embedding"),
	}, opts...)
	embedder, err := NewEmbedder("test-key", opts...)
	require.NoError(t, err)
	return embedder
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, llm.ErrAPIKeyNotSet)
}

func TestEmbedderEmbedBatchKeepsOrder(t *testing.T) {
	srv := &embeddingServer{}
	embedder := newTestEmbedder(t, srv)

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 0.5}, vectors[0])
	assert.Equal(t, []float32{3, 0.5}, vectors[1])
	assert.Equal(t, []float32{2, 0.5}, vectors[2])

	require.Len(t, srv.requests, 1)
	assert.Equal(t, "test-embedding", srv.requests[0].Model)
	assert.Equal(t, "test-embedding", embedder.ModelName())
}

func TestEmbedderSplitsLargeBatches(t *testing.T) {
	srv := &embeddingServer{}
	embedder := newTestEmbedder(t, srv)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = strings.Repeat("x", i%7+1)
	}

	vectors, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, float32(i%7+1), v[0])
	}

	require.Len(t, srv.requests, 3)
	assert.Len(t, srv.requests[0].Input, MaxBatchSize)
	assert.Len(t, srv.requests[2].Input, 50)
}

func TestEmbedderTruncatesLongInputs(t *testing.T) {
	srv := &embeddingServer{}
	embedder := newTestEmbedder(t, srv, WithTokenBudget(runeBudget{}))

	vector, err := embedder.Embed(context.Background(), strings.Repeat("y", MaxInputTokens+100))
	require.NoError(t, err)
	assert.Equal(t, float32(MaxInputTokens), vector[0])
}

func TestEmbedderSplitBatchesByTokenBudget(t *testing.T) {
	embedder, err := NewEmbedder("test-key", WithTokenBudget(runeBudget{}))
	require.NoError(t, err)

	big := strings.Repeat("z", MaxRequestTokens/2+1)
	batches := embedder.splitBatches([]string{big, big, "small"})
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 2)
}

func TestEmbedderRateLimit(t *testing.T) {
	srv := &embeddingServer{status: http.StatusTooManyRequests}
	embedder := newTestEmbedder(t, srv)

	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrRateLimitExceeded)

	var embErr *llm.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "test-embedding", embErr.Model)
	assert.Len(t, srv.requests, 1, "SDK retries must be disabled")
}

func TestEmbedderRejectsEmptyInput(t *testing.T) {
	embedder := newTestEmbedder(t, &embeddingServer{})

	_, err := embedder.EmbedBatch(context.Background(), nil)
	var embErr *llm.EmbeddingError
	assert.ErrorAs(t, err, &embErr)
}
