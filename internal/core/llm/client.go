package llm

import (
	"context"
	"time"
)

// Embedder はテキストをベクトル表現に変換するインターフェース
// 同一モデルであれば同じテキストに対して常に同じベクトルを返すことを前提とする
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch はバッチでEmbeddingを生成する（入力と同じ順序で返す）
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はモデル名を返す
	ModelName() string
}

// CompletionRequest はLLMへのリクエスト
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	Timeout     time.Duration // 0 の場合はクライアント既定値
}

// CompletionResponse はLLMからのレスポンス
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client はチャット補完スタイルのLLMクライアント
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// TokenCounter はテキストのトークン数をカウントするインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}
