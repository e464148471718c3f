package ask

import (
	"slices"

	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/search"
)

// State は1回の質問応答で各段階を流れる状態を表す
//
// 各段階は受け取った State を変更せず、新しい State を返す。
type State struct {
	Collection   string
	Question     string
	Context      []string                // 検索されたチャンク本文（類似度の降順）
	Citations    []string                // Context と同じ順序の引用文字列
	Chunks       []search.RetrievedChunk // 検索結果そのもの
	Retrieved    bool                    // 検索段階が完了したか
	Prompt       mo.Option[string]       // 組み立てたプロンプト（診断用）
	Answer       mo.Option[string]       // LLMの回答
	PromptTokens int                     // プロンプトのトークン数（TokenCounter 未設定時は0）
}

// NewState は検索前の初期状態を作成する
func NewState(collection, question string) State {
	return State{
		Collection: collection,
		Question:   question,
		Prompt:     mo.None[string](),
		Answer:     mo.None[string](),
	}
}

// clone はスライスを複製した State を返す
func (s State) clone() State {
	s.Context = slices.Clone(s.Context)
	s.Citations = slices.Clone(s.Citations)
	s.Chunks = slices.Clone(s.Chunks)
	return s
}

// Answer は呼び出し側に返す質問応答の結果
type Answer struct {
	Text   string                  // LLMによる回答
	Chunks []search.RetrievedChunk // 回答の根拠として渡したチャンク
	Prompt string                  // LLMに送ったプロンプト
}
