package collection

import "errors"

var (
	// ErrInvalidName はコレクション名が命名規則に違反している場合のエラー
	ErrInvalidName = errors.New("invalid collection name")

	// ErrLengthMismatch はチャンク数とベクトル数が一致しない場合のエラー
	ErrLengthMismatch = errors.New("chunks and vectors length mismatch")

	// ErrDimensionMismatch はコレクションの次元数と異なるベクトルが渡された場合のエラー
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector は次元数0のベクトルが渡された場合のエラー
	ErrEmptyVector = errors.New("empty vector")
)
