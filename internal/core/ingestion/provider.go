package ingestion

import (
	"context"

	"github.com/jinford/pdf-rag/internal/core/ingestion/chunk"
)

// Document はローダーが読み込んだ文書を表す
type Document struct {
	Source string       // 元文書の識別子（ファイル名）
	Pages  []chunk.Page // ページ単位のテキスト（ページ順）
	Raw    []byte       // 元ファイルのバイト列（保管用）
}

// PageCount はテキストを持つページ数を返す
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// DocumentLoader はファイルパスから文書を読み込むインターフェース
// PDF 以外の形式に対応する場合の拡張ポイント
type DocumentLoader interface {
	Load(ctx context.Context, path string) (*Document, error)
}
