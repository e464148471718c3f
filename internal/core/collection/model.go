package collection

import "github.com/samber/mo"

// Chunk は索引・検索の最小単位となる文書断片を表す
// 作成後は変更しない
type Chunk struct {
	ID     string         // チャンクID
	Text   string         // チャンク本文
	Page   mo.Option[int] // 開始ページ（0始まり）。ページ情報を持たない場合は None
	Source string         // 元文書の識別子（ファイル名など）
}

// ScoredChunk は類似度スコア付きのチャンク
type ScoredChunk struct {
	Chunk Chunk
	Score float64 // コサイン類似度（大きいほど類似）
}
