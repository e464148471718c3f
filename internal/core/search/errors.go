package search

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestion は質問文が空の場合のエラー
var ErrEmptyQuestion = errors.New("question is required")

// RetrievalError は検索の失敗を表す
// Embedding またはストレージ読み取りの失敗で発生し、回答生成は行われない
type RetrievalError struct {
	Collection string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval from %q failed: %v", e.Collection, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
