package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

const (
	// DirName は保管ディレクトリ名（DB_DIR 配下）
	DirName = "originals"
	// Extension は保管ファイルの拡張子
	Extension = ".pdf"
)

// Originals は取り込んだ元ファイルをコレクション名で保管する
// ファイルは <dir>/<collection>.pdf に一時ファイル経由で原子的に書き込む
type Originals struct {
	dir string
}

// NewOriginals は baseDir/originals を保管先とする Originals を作成する
func NewOriginals(baseDir string) (*Originals, error) {
	if baseDir == "" {
		return nil, errors.New("base directory is required")
	}
	dir := filepath.Join(baseDir, DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create originals directory: %w", err)
	}
	return &Originals{dir: dir}, nil
}

// Dir は保管ディレクトリを返す
func (o *Originals) Dir() string {
	return o.dir
}

func (o *Originals) pathFor(name string) (string, error) {
	if err := collection.Validate(name); err != nil {
		return "", err
	}
	return filepath.Join(o.dir, name+Extension), nil
}

// Store は元ファイルを保存する。既存のファイルは置き換える
func (o *Originals) Store(ctx context.Context, name string, data []byte) error {
	path, err := o.pathFor(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(o.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Path は保管済みファイルのパスを返す
func (o *Originals) Path(ctx context.Context, name string) (mo.Option[string], error) {
	path, err := o.pathFor(name)
	if err != nil {
		return mo.None[string](), err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mo.None[string](), nil
		}
		return mo.None[string](), fmt.Errorf("failed to check original: %w", err)
	}
	return mo.Some(path), nil
}

// Delete は保管済みファイルを削除する
func (o *Originals) Delete(ctx context.Context, name string) (bool, error) {
	path, err := o.pathFor(name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove original: %w", err)
	}
	return true, nil
}

// インターフェース実装の確認
var _ collection.Originals = (*Originals)(nil)
