package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

// DefaultEncoding は OpenAI の Embedding / チャットモデルが使用するエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken によるトークン数の計測と切り詰めを提供する
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は新しい Counter を作成する
// encodingName が空の場合は cl100k_base を使用する
func NewCounter(encodingName string) (*Counter, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &Counter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil {
		// エンコーディングが初期化されていない場合は0を返す
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate はテキストを先頭から maxTokens トークン以内に切り詰める
func (c *Counter) Truncate(text string, maxTokens int) string {
	if c == nil || c.encoding == nil || maxTokens <= 0 {
		return text
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// インターフェース実装の確認
var _ llm.TokenCounter = (*Counter)(nil)
