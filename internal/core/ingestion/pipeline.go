package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jinford/pdf-rag/internal/core/llm"
)

const (
	// DefaultEmbeddingWorkerCount はデフォルトのEmbeddingワーカー数（I/O バウンド）
	DefaultEmbeddingWorkerCount = 4
	// DefaultEmbeddingBatchSize は1リクエストあたりのデフォルト入力数
	DefaultEmbeddingBatchSize = 100
	// MinBatchSize は最小バッチサイズ
	MinBatchSize = 1
)

// PipelineConfig はEmbedding処理の設定
type PipelineConfig struct {
	// EmbeddingWorkerCount は同時に実行するバッチ数
	EmbeddingWorkerCount int
	// EmbeddingBatchSize は1バッチあたりのテキスト数
	EmbeddingBatchSize int
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		EmbeddingWorkerCount: DefaultEmbeddingWorkerCount,
		EmbeddingBatchSize:   DefaultEmbeddingBatchSize,
	}
}

// EmbeddingPipeline はテキスト列をバッチに分けて並行にEmbeddingする
// 結果は入力と同じ順序で返す。1バッチでも失敗した場合は部分的な結果を返さない
type EmbeddingPipeline struct {
	embedder  llm.Embedder
	workers   int
	batchSize int
	logger    *slog.Logger
}

// NewEmbeddingPipeline は新しい EmbeddingPipeline を作成する
func NewEmbeddingPipeline(embedder llm.Embedder, config *PipelineConfig, logger *slog.Logger) *EmbeddingPipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	workers := config.EmbeddingWorkerCount
	if workers <= 0 {
		workers = 1
	}
	batchSize := config.EmbeddingBatchSize
	if batchSize <= 0 {
		logger.Warn("EmbeddingBatchSizeが無効な値です。フォールバック値を使用します",
			"configured", batchSize,
			"fallback", MinBatchSize,
		)
		batchSize = MinBatchSize
	}

	return &EmbeddingPipeline{
		embedder:  embedder,
		workers:   workers,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Embed は texts の各要素に対応するベクトルを返す
func (p *EmbeddingPipeline) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		g.Go(func() error {
			batch, err := p.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				var embErr *llm.EmbeddingError
				if errors.As(err, &embErr) {
					return err
				}
				return &llm.EmbeddingError{Model: p.embedder.ModelName(), Err: llm.ClassifyContextError(gctx, err)}
			}
			if len(batch) != end-start {
				return &llm.EmbeddingError{
					Model: p.embedder.ModelName(),
					Err:   fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, end-start, len(batch)),
				}
			}
			copy(vectors[start:end], batch)
			p.logger.Debug("Embeddingバッチを処理",
				"from", start,
				"to", end,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
