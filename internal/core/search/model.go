package search

import (
	"fmt"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

// RetrievedChunk は検索で得られたチャンクと表示用の引用情報
type RetrievedChunk struct {
	Chunk          collection.Chunk
	Score          float64
	Citation       string // "page N"（1始まり）。ページ情報がなければ "source: <識別子>"
	SourceCitation string // "source: <識別子>"
}

// RetrievedContext は類似度の降順に並んだ検索結果
// 長さは要求した k 以下。0件は「該当なし」を表し、エラーではない
type RetrievedContext struct {
	Collection string
	Question   string
	Chunks     []RetrievedChunk
}

// IsEmpty は該当するチャンクがなかったかを返す
func (c RetrievedContext) IsEmpty() bool {
	return len(c.Chunks) == 0
}

// Texts はチャンク本文を順序どおりに返す
func (c RetrievedContext) Texts() []string {
	texts := make([]string, len(c.Chunks))
	for i, rc := range c.Chunks {
		texts[i] = rc.Chunk.Text
	}
	return texts
}

// Citations は引用文字列を順序どおりに返す
func (c RetrievedContext) Citations() []string {
	citations := make([]string, len(c.Chunks))
	for i, rc := range c.Chunks {
		citations[i] = rc.Citation
	}
	return citations
}

// FormatCitation はチャンクのメタデータを人が読める引用文字列に変換する
// 保存されているページ番号は0始まりのため、表示時に1を加える
func FormatCitation(chunk collection.Chunk) string {
	if page, ok := chunk.Page.Get(); ok {
		return fmt.Sprintf("page %d", page+1)
	}
	return FormatSourceCitation(chunk)
}

// FormatSourceCitation は元文書の識別子による引用文字列を返す
func FormatSourceCitation(chunk collection.Chunk) string {
	return "source: " + chunk.Source
}
