package ask

import (
	"errors"
	"fmt"
)

// ErrNotRetrieved は検索段階を経ていない State で回答生成を呼び出した場合のエラー
var ErrNotRetrieved = errors.New("generate called before retrieve")

// GenerationError は回答生成の失敗を表す
// 検索は成功しているため、State から取得済みのチャンクを参照できる
type GenerationError struct {
	State State
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed after retrieving %d chunks: %v", len(e.State.Chunks), e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
