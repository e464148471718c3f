package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingBaseURL は Embedding API のデフォルトエンドポイント
	DefaultEmbeddingBaseURL = "https://api.openai.com/v1"

	// MaxBatchSize は1リクエストあたりの最大入力数
	MaxBatchSize = 100
	// MaxInputTokens は1入力あたりの最大トークン数
	MaxInputTokens = 8191
	// MaxRequestTokens は1リクエストあたりの最大トークン数
	MaxRequestTokens = 300000
)

// TokenBudget はトークン数の計測と切り詰めを行うインターフェース
type TokenBudget interface {
	CountTokens(text string) int
	Truncate(text string, maxTokens int) string
}

// Embedder は OpenAI 互換の Embedding API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	timeout   time.Duration
	budget    TokenBudget
}

type embedderOptions struct {
	model      string
	dimension  int
	baseURL    string
	timeout    time.Duration
	budget     TokenBudget
	httpClient *http.Client
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を指定する（0の場合はモデルの既定値）
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBaseURL はAPIエンドポイントを上書きする
func WithEmbeddingBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		o.baseURL = baseURL
	}
}

// WithEmbeddingTimeout は1リクエストあたりのタイムアウトを設定する
func WithEmbeddingTimeout(timeout time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.timeout = timeout
	}
}

// WithTokenBudget はトークン数による入力の切り詰めとリクエスト分割を有効にする
func WithTokenBudget(budget TokenBudget) EmbedderOption {
	return func(o *embedderOptions) {
		o.budget = budget
	}
}

// WithEmbeddingHTTPClient は使用する HTTP クライアントを設定する
func WithEmbeddingHTTPClient(httpClient *http.Client) EmbedderOption {
	return func(o *embedderOptions) {
		o.httpClient = httpClient
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, llm.ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:   DefaultEmbeddingModel,
		baseURL: DefaultEmbeddingBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout <= 0 {
		options.timeout = DefaultTimeout
	}

	client := openai.NewClient(requestOptions(apiKey, clientOptions{
		baseURL:    options.baseURL,
		httpClient: options.httpClient,
	})...)

	return &Embedder{
		client:    client,
		model:     options.model,
		dimension: options.dimension,
		timeout:   options.timeout,
		budget:    options.budget,
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
// 入力数やトークン数の上限を超える場合は複数のリクエストに分割し、入力と同じ順序で返す
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &llm.EmbeddingError{Model: e.model, Err: errors.New("no texts provided")}
	}

	inputs := texts
	if e.budget != nil {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = e.budget.Truncate(t, MaxInputTokens)
		}
	}

	embeddings := make([][]float32, 0, len(inputs))
	for _, batch := range e.splitBatches(inputs) {
		vectors, err := e.embedRequest(ctx, batch)
		if err != nil {
			return nil, &llm.EmbeddingError{Model: e.model, Err: err}
		}
		embeddings = append(embeddings, vectors...)
	}
	return embeddings, nil
}

// splitBatches は入力数とトークン数の上限に収まるように入力を分割する
func (e *Embedder) splitBatches(inputs []string) [][]string {
	var batches [][]string
	var current []string
	tokens := 0

	for _, in := range inputs {
		n := 0
		if e.budget != nil {
			n = e.budget.CountTokens(in)
		}
		if len(current) > 0 && (len(current) >= MaxBatchSize || tokens+n > MaxRequestTokens) {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, in)
		tokens += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (e *Embedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		if isRateLimitError(err) {
			return nil, fmt.Errorf("%w: %w", llm.ErrRateLimitExceeded, err)
		}
		return nil, llm.ClassifyContextError(ctx, fmt.Errorf("failed to generate embeddings: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", llm.ErrEmptyResponse, len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		vector := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vector[j] = float32(v)
		}
		embeddings[i] = vector
	}
	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// インターフェース実装の確認
var _ llm.Embedder = (*Embedder)(nil)
