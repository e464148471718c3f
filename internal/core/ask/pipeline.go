package ask

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/llm"
	"github.com/jinford/pdf-rag/internal/core/search"
)

const (
	// DefaultTemperature は回答生成のデフォルト温度
	DefaultTemperature = 0.7
	// DefaultTimeout はLLM呼び出しのデフォルトタイムアウト
	DefaultTimeout = 90 * time.Second
)

// ContextRetriever は質問に関連するチャンクを取得するインターフェース
type ContextRetriever interface {
	Retrieve(ctx context.Context, name, question string, k int) (search.RetrievedContext, error)
}

var _ ContextRetriever = (*search.Retriever)(nil)

// Pipeline は検索と回答生成の2段階で質問に答える
// Run(state) は Generate(Retrieve(state)) と同じ結果になる
type Pipeline struct {
	retriever    ContextRetriever
	llm          llm.Client
	k            int
	temperature  float64
	timeout      time.Duration
	tokenCounter llm.TokenCounter
	logger       *slog.Logger
}

// PipelineOption は Pipeline のオプション設定
type PipelineOption func(*Pipeline)

// WithPipelineLogger は Pipeline にロガーを設定する
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRetrievalK は取得件数を設定する（0以下は Retriever の既定値）
func WithRetrievalK(k int) PipelineOption {
	return func(p *Pipeline) {
		p.k = k
	}
}

// WithTemperature は回答生成の温度を設定する
func WithTemperature(t float64) PipelineOption {
	return func(p *Pipeline) {
		p.temperature = t
	}
}

// WithTimeout はLLM呼び出しのタイムアウトを設定する
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithTokenCounter はプロンプトのトークン数計測に使う TokenCounter を設定する
func WithTokenCounter(counter llm.TokenCounter) PipelineOption {
	return func(p *Pipeline) {
		p.tokenCounter = counter
	}
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(retriever ContextRetriever, client llm.Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		retriever:   retriever,
		llm:         client,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	return p
}

// Run は検索と回答生成を順に実行する
func (p *Pipeline) Run(ctx context.Context, collection, question string) (State, error) {
	state, err := p.Retrieve(ctx, NewState(collection, question))
	if err != nil {
		return state, err
	}
	return p.Generate(ctx, state)
}

// Retrieve は検索段階を実行し、検索結果を持つ新しい State を返す
// 0件の検索結果は「該当なし」として正常に扱う
func (p *Pipeline) Retrieve(ctx context.Context, in State) (State, error) {
	out := in.clone()

	retrieved, err := p.retriever.Retrieve(ctx, in.Collection, in.Question, p.k)
	if err != nil {
		return out, err
	}

	out.Chunks = retrieved.Chunks
	out.Context = retrieved.Texts()
	out.Citations = retrieved.Citations()
	out.Retrieved = true

	p.logger.Info("検索段階が完了",
		"collection", in.Collection,
		"chunks", len(out.Chunks),
	)
	return out, nil
}

// Generate は回答生成段階を実行し、プロンプトと回答を持つ新しい State を返す
// 失敗した場合は検索結果を保持した State を含む GenerationError を返す
func (p *Pipeline) Generate(ctx context.Context, in State) (State, error) {
	out := in.clone()
	if !in.Retrieved {
		return out, &GenerationError{State: out, Err: ErrNotRetrieved}
	}

	prompt := BuildPrompt(in.Question, in.Chunks)
	out.Prompt = mo.Some(prompt)
	if p.tokenCounter != nil {
		out.PromptTokens = p.tokenCounter.CountTokens(prompt)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := p.llm.Complete(callCtx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: p.temperature,
		Timeout:     p.timeout,
	})
	if err != nil {
		p.logger.Warn("回答生成に失敗",
			"collection", in.Collection,
			"chunks", len(out.Chunks),
			"error", err,
		)
		return out, &GenerationError{State: out, Err: llm.ClassifyContextError(callCtx, err)}
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return out, &GenerationError{State: out, Err: llm.ErrEmptyResponse}
	}
	out.Answer = mo.Some(answer)

	p.logger.Info("回答生成が完了",
		"collection", in.Collection,
		"model", resp.Model,
		"promptTokens", out.PromptTokens,
		"tokensUsed", resp.TokensUsed,
		"duration", time.Since(startTime),
	)
	return out, nil
}
