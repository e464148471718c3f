package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig は設定が不正な場合に返されます
var ErrInvalidConfig = errors.New("invalid chunker config")

// ConfigError は Chunker 構築時の設定エラーを表します
type ConfigError struct {
	Size    int
	Overlap int
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunker: %s (size=%d, overlap=%d)", e.Reason, e.Size, e.Overlap)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
