package collection

import (
	"context"

	"github.com/samber/mo"
)

// Index はコレクション単位でチャンクとベクトルを永続化するベクトル索引
//
// 同一コレクションへの書き込みは実装側で直列化される。読み取りは並行に実行できる。
// ストレージのI/Oエラーは空の結果に変換せず、必ずエラーとして返す。
type Index interface {
	// Upsert はチャンクとベクトルを書き込み、挿入件数を返す
	// コレクションが存在しない場合は作成する。失敗時はコレクションを登録しない
	Upsert(ctx context.Context, name string, chunks []Chunk, vectors [][]float32) (int, error)

	// Query は類似度の降順で最大 k 件を返す
	// コレクションが存在しない場合はエラーではなく空の結果を返す
	Query(ctx context.Context, name string, vector []float32, k int) ([]ScoredChunk, error)

	// List は永続化済みのコレクション名を返す
	List(ctx context.Context) ([]string, error)

	// Delete はコレクションを削除する
	// 存在しなかった場合は (false, nil)、削除に失敗した場合は (false, err) を返す
	Delete(ctx context.Context, name string) (bool, error)

	// DeleteChunks は指定したチャンクを取り除く。チャンクが残らなければコレクションも削除する
	// 取り込み途中で失敗した場合のロールバックに使用する
	DeleteChunks(ctx context.Context, name string, ids []string) error

	// Count はコレクションのチャンク数を返す（存在しない場合は0）
	Count(ctx context.Context, name string) (int, error)

	// Close はリソースを解放する
	Close() error
}

// Originals はコレクション名をキーとした元ファイルの保管庫
type Originals interface {
	// Store は元ファイルのバイト列を保存する（既存の場合は上書き）
	Store(ctx context.Context, name string, data []byte) error

	// Path は保存済みファイルのパスを返す
	Path(ctx context.Context, name string) (mo.Option[string], error)

	// Delete は保存済みファイルを削除する。存在しなかった場合は false
	Delete(ctx context.Context, name string) (bool, error)
}
