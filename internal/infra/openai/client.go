package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

const (
	// DefaultBaseURL は OpenAI 互換APIのデフォルトエンドポイント（OpenRouter）
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 90 * time.Second
)

// Client は OpenAI 互換のチャット補完APIを使用した LLM クライアント実装
// リトライは行わず、失敗はそのまま呼び出し元に返す
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

type clientOptions struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithBaseURL はAPIエンドポイントを上書きする
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithHTTPClient は使用する HTTP クライアントを設定する
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey, model string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrAPIKeyNotSet
	}
	if model == "" {
		return nil, errors.New("model is required")
	}

	options := clientOptions{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout <= 0 {
		options.timeout = DefaultTimeout
	}

	return &Client{
		client:  openai.NewClient(requestOptions(apiKey, options)...),
		model:   model,
		timeout: options.timeout,
	}, nil
}

func requestOptions(apiKey string, options clientOptions) []option.RequestOption {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if options.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(normalizeBaseURL(options.baseURL)))
	}
	if options.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(options.httpClient))
	}
	return reqOpts
}

// normalizeBaseURL はパス結合のため末尾にスラッシュを付ける
func normalizeBaseURL(baseURL string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL
	}
	return baseURL + "/"
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はチャット補完APIでテキストを生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if isRateLimitError(err) {
			return llm.CompletionResponse{}, fmt.Errorf("%w: %w", llm.ErrRateLimitExceeded, err)
		}
		return llm.CompletionResponse{}, llm.ClassifyContextError(ctx, fmt.Errorf("chat completion failed: %w", err))
	}

	if len(completion.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("%w: no completion choices returned", llm.ErrEmptyResponse)
	}

	return llm.CompletionResponse{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Model:      string(completion.Model),
	}, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// インターフェース実装の確認
var _ llm.Client = (*Client)(nil)
