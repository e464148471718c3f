package ask

import (
	"context"
	"log/slog"
)

// Service は呼び出し側に質問応答の結果を返す
type Service struct {
	pipeline *Pipeline
	logger   *slog.Logger
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
func NewService(pipeline *Pipeline, opts ...ServiceOption) *Service {
	svc := &Service{
		pipeline: pipeline,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Answer は collection に対する質問へ回答する
// 回答生成に失敗した場合は *GenerationError から取得済みのチャンクを参照できる
func (s *Service) Answer(ctx context.Context, collection, question string) (*Answer, error) {
	s.logger.Info("質問を受け付けました",
		"collection", collection,
		"question", question,
	)

	state, err := s.pipeline.Run(ctx, collection, question)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Text:   state.Answer.OrEmpty(),
		Chunks: state.Chunks,
		Prompt: state.Prompt.OrEmpty(),
	}, nil
}
