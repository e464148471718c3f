package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument は文書からチャンクが1件も得られなかった場合のエラー
	ErrEmptyDocument = errors.New("document has no extractable text")

	// ErrEmbeddingCountMismatch は Embedder が入力と異なる件数のベクトルを返した場合のエラー
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
)

// Stage は取り込み処理の段階
type Stage string

const (
	StageValidate Stage = "validate"
	StageLoad     Stage = "load"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageRetain   Stage = "retain"
)

// IngestionError は取り込みの失敗を表す
// どの段階で失敗してもコレクションは登録されない
type IngestionError struct {
	Stage      Stage
	Collection string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion of %q failed at %s: %v", e.Collection, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
