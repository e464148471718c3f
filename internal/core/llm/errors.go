package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout は外部サービス呼び出しが設定されたタイムアウトを超えた場合のエラー
	ErrTimeout = errors.New("request timed out")

	// ErrRateLimitExceeded はレート制限を超えた場合のエラー
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrEmptyResponse はレスポンスに内容が含まれない場合のエラー
	ErrEmptyResponse = errors.New("empty response")

	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("API key not set")
)

// EmbeddingError は Embedding 生成の失敗を表す
// 部分的な結果は返さず、呼び出し元の取り込み・検索処理を中断させる
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (model=%s): %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// ClassifyContextError は ctx の期限切れを ErrTimeout として区別できるようにする
// ctx が期限切れでない場合は err をそのまま返す
func ClassifyContextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
