package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

// DefaultK は k が指定されない場合の取得件数
const DefaultK = 5

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever は質問に関連するチャンクを上位 k 件取得する
type Retriever struct {
	index    collection.Index
	embedder Embedder
	k        int
	logger   *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithDefaultK は k <= 0 で呼び出された場合の取得件数を設定する
func WithDefaultK(k int) RetrieverOption {
	return func(r *Retriever) {
		r.k = k
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(index collection.Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		k:        DefaultK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.k <= 0 {
		r.k = DefaultK
	}
	return r
}

// K は既定の取得件数を返す
func (r *Retriever) K() int {
	return r.k
}

// Retrieve は質問を一度だけEmbeddingし、コレクションから上位 k 件を取得する
// name は取り込み時と同様にサニタイズする。コレクションが存在しない場合は空の結果を返す
func (r *Retriever) Retrieve(ctx context.Context, name, question string, k int) (RetrievedContext, error) {
	// 取り込み時と同じ規則で名前を正規化する。存在しない名前は空の結果になる
	name = collection.Sanitize(name)
	result := RetrievedContext{Collection: name, Question: question}

	if strings.TrimSpace(question) == "" {
		return result, &RetrievalError{Collection: name, Err: ErrEmptyQuestion}
	}
	if k <= 0 {
		k = r.k
	}

	queryVector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return result, &RetrievalError{Collection: name, Err: fmt.Errorf("failed to embed query: %w", err)}
	}

	scored, err := r.index.Query(ctx, name, queryVector, k)
	if err != nil {
		return result, &RetrievalError{Collection: name, Err: fmt.Errorf("search failed: %w", err)}
	}

	result.Chunks = make([]RetrievedChunk, 0, len(scored))
	for _, sc := range scored {
		result.Chunks = append(result.Chunks, RetrievedChunk{
			Chunk:          sc.Chunk,
			Score:          sc.Score,
			Citation:       FormatCitation(sc.Chunk),
			SourceCitation: FormatSourceCitation(sc.Chunk),
		})
	}

	r.logger.Debug("検索が完了",
		"collection", name,
		"k", k,
		"hits", len(result.Chunks),
	)

	return result, nil
}
