package collection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"
)

// DeleteOutcome はコレクション削除の結果
type DeleteOutcome int

const (
	// DeleteNotFound は削除対象が存在しなかったことを表す
	DeleteNotFound DeleteOutcome = iota
	// DeleteRemoved は削除が行われたことを表す
	DeleteRemoved
)

func (o DeleteOutcome) String() string {
	switch o {
	case DeleteRemoved:
		return "removed"
	default:
		return "not_found"
	}
}

// ListResult はコレクション一覧の結果
//
// 読み取りに失敗した場合は空の一覧を返し Degraded を true にする。
// 呼び出し側は Degraded と Err で劣化経路を検出できる。
type ListResult struct {
	Names    []string
	Degraded bool
	Err      error
}

// Service はコレクションのライフサイクル操作を提供する
type Service struct {
	index     Index
	originals Originals
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(index Index, originals Originals, opts ...ServiceOption) *Service {
	svc := &Service{
		index:     index,
		originals: originals,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// List は永続化済みのコレクション名を返す
func (s *Service) List(ctx context.Context) ListResult {
	names, err := s.index.List(ctx)
	if err != nil {
		s.logger.Warn("コレクション一覧の取得に失敗したため空の一覧を返します", "error", err)
		return ListResult{Names: []string{}, Degraded: true, Err: err}
	}
	if names == nil {
		names = []string{}
	}
	return ListResult{Names: names}
}

// Delete はコレクションのベクトルと保管済みの元ファイルを削除する
// name は取り込み時と同じ規則でサニタイズする
func (s *Service) Delete(ctx context.Context, name string) (DeleteOutcome, error) {
	name = Sanitize(name)

	removedIndex, err := s.index.Delete(ctx, name)
	if err != nil {
		return DeleteNotFound, fmt.Errorf("failed to delete collection %q: %w", name, err)
	}

	removedFile, err := s.originals.Delete(ctx, name)
	if err != nil {
		return DeleteNotFound, fmt.Errorf("failed to delete original of %q: %w", name, err)
	}

	outcome := DeleteNotFound
	if removedIndex || removedFile {
		outcome = DeleteRemoved
	}

	s.logger.Info("コレクションを削除しました",
		"collection", name,
		"outcome", outcome.String(),
		"vectors", removedIndex,
		"original", removedFile,
	)
	return outcome, nil
}

// OriginalPath は保管済み元ファイルのパスを返す
func (s *Service) OriginalPath(ctx context.Context, name string) (mo.Option[string], error) {
	return s.originals.Path(ctx, Sanitize(name))
}

// Count はコレクションのチャンク数を返す
func (s *Service) Count(ctx context.Context, name string) (int, error) {
	return s.index.Count(ctx, Sanitize(name))
}
