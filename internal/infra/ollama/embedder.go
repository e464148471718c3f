package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

const (
	// DefaultBaseURL はローカルの Ollama サーバー
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel は sentence-transformers の all-MiniLM-L6-v2 相当のモデル
	DefaultModel = "all-minilm"
	// DefaultTimeout はHTTPリクエストのタイムアウト
	DefaultTimeout = 90 * time.Second
)

// Embedder は Ollama の Embed API を使用してテキストをベクトルに変換する
type Embedder struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

type embedderOptions struct {
	model   string
	baseURL string
	timeout time.Duration
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithBaseURL はサーバーのURLを上書きする
func WithBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout は1リクエストあたりのタイムアウトを設定する
func WithTimeout(timeout time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.timeout = timeout
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(opts ...EmbedderOption) (*Embedder, error) {
	options := embedderOptions{
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.baseURL == "" {
		options.baseURL = DefaultBaseURL
	}
	if options.model == "" {
		options.model = DefaultModel
	}
	if options.timeout <= 0 {
		options.timeout = DefaultTimeout
	}

	parsedURL, err := url.Parse(options.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// タイムアウトはリクエストごとのコンテキストで管理し、ErrTimeout として判別できるようにする
	hc := &http.Client{}

	return &Embedder{
		client:  api.NewClient(parsedURL, hc),
		model:   options.model,
		timeout: options.timeout,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch はバッチで Embedding を生成する
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &llm.EmbeddingError{Model: e.model, Err: errors.New("no texts provided")}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embed(reqCtx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, &llm.EmbeddingError{
			Model: e.model,
			Err:   llm.ClassifyContextError(reqCtx, fmt.Errorf("failed to get embeddings from ollama: %w", err)),
		}
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, &llm.EmbeddingError{
			Model: e.model,
			Err:   fmt.Errorf("%w: expected %d embeddings, got %d", llm.ErrEmptyResponse, len(texts), len(resp.Embeddings)),
		}
	}

	return resp.Embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// インターフェース実装の確認
var _ llm.Embedder = (*Embedder)(nil)
