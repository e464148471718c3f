package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jinford/pdf-rag/internal/core/collection"
	"github.com/jinford/pdf-rag/internal/core/ingestion/chunk"
	"github.com/jinford/pdf-rag/internal/core/llm"
)

// Chunker はページ列をチャンク列に分割するインターフェース
type Chunker interface {
	Split(source string, pages []chunk.Page) []collection.Chunk
}

var _ Chunker = (*chunk.RecursiveChunker)(nil)

// IngestResult は取り込み結果を表す
type IngestResult struct {
	Collection string        // 実際に使用したコレクション名（サニタイズ済み）
	Chunks     int           // 登録したチャンク数
	Pages      int           // テキストを抽出したページ数
	Duration   time.Duration // 処理時間
}

// Ingestor は文書を読み込み、チャンク化・Embeddingしてコレクションに登録する
//
// 既存のコレクションへ取り込んだ場合はチャンクを追記する。
// どの段階で失敗しても、その取り込みで登録したチャンクは残らない。
type Ingestor struct {
	loader    DocumentLoader
	chunker   Chunker
	pipeline  *EmbeddingPipeline
	index     collection.Index
	originals collection.Originals
	logger    *slog.Logger
}

type ingestorOptions struct {
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

// IngestorOption は Ingestor のオプション設定
type IngestorOption func(*ingestorOptions)

// WithIngestorLogger は Ingestor にロガーを設定する
func WithIngestorLogger(logger *slog.Logger) IngestorOption {
	return func(o *ingestorOptions) {
		o.logger = logger
	}
}

// WithIngestorPipelineConfig はEmbeddingパイプラインの設定を上書きする
func WithIngestorPipelineConfig(cfg *PipelineConfig) IngestorOption {
	return func(o *ingestorOptions) {
		o.pipelineConfig = cfg
	}
}

// NewIngestor は新しい Ingestor を作成する
func NewIngestor(
	loader DocumentLoader,
	chunker Chunker,
	embedder llm.Embedder,
	index collection.Index,
	originals collection.Originals,
	opts ...IngestorOption,
) *Ingestor {
	options := ingestorOptions{
		pipelineConfig: DefaultPipelineConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Ingestor{
		loader:    loader,
		chunker:   chunker,
		pipeline:  NewEmbeddingPipeline(embedder, options.pipelineConfig, options.logger),
		index:     index,
		originals: originals,
		logger:    options.logger,
	}
}

// CollectionNameFor はファイルパスから既定のコレクション名を導出する
func CollectionNameFor(path string) string {
	base := filepath.Base(path)
	return collection.Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Ingest は path の文書を name のコレクションに取り込む
// name が空の場合はファイル名から導出する。name は常にサニタイズされる
func (s *Ingestor) Ingest(ctx context.Context, path, name string) (*IngestResult, error) {
	startTime := time.Now()

	if name == "" {
		name = CollectionNameFor(path)
	} else {
		name = collection.Sanitize(name)
	}

	s.logger.Info("取り込みを開始",
		"path", path,
		"collection", name,
	)

	if strings.TrimSpace(path) == "" {
		return nil, &IngestionError{Stage: StageValidate, Collection: name, Err: errors.New("file path is required")}
	}

	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, &IngestionError{Stage: StageLoad, Collection: name, Err: err}
	}

	chunks := s.chunker.Split(doc.Source, doc.Pages)
	if len(chunks) == 0 {
		return nil, &IngestionError{Stage: StageChunk, Collection: name, Err: ErrEmptyDocument}
	}

	s.logger.Info("チャンク化が完了",
		"collection", name,
		"pages", doc.PageCount(),
		"chunks", len(chunks),
	)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.pipeline.Embed(ctx, texts)
	if err != nil {
		return nil, &IngestionError{Stage: StageEmbed, Collection: name, Err: err}
	}

	inserted, err := s.index.Upsert(ctx, name, chunks, vectors)
	if err != nil {
		return nil, &IngestionError{Stage: StageIndex, Collection: name, Err: err}
	}

	if err := s.originals.Store(ctx, name, doc.Raw); err != nil {
		s.rollback(name, chunks)
		return nil, &IngestionError{Stage: StageRetain, Collection: name, Err: err}
	}

	duration := time.Since(startTime)

	s.logger.Info("取り込みが完了",
		"collection", name,
		"pages", doc.PageCount(),
		"chunks", inserted,
		"duration", duration,
	)

	return &IngestResult{
		Collection: name,
		Chunks:     inserted,
		Pages:      doc.PageCount(),
		Duration:   duration,
	}, nil
}

// rollback は登録済みのチャンクを取り除く
// 呼び出し元の ctx が既にキャンセルされていても実行されるよう独立したコンテキストを使う
func (s *Ingestor) rollback(name string, chunks []collection.Chunk) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := s.index.DeleteChunks(ctx, name, ids); err != nil {
		s.logger.Error("ロールバックに失敗",
			"collection", name,
			"chunks", len(ids),
			"error", err,
		)
		return
	}
	s.logger.Warn("取り込み途中のチャンクをロールバックしました",
		"collection", name,
		"chunks", len(ids),
	)
}

// StageOf は err が取り込みエラーであれば失敗した段階を返す
func StageOf(err error) (Stage, bool) {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Stage, true
	}
	return "", false
}
