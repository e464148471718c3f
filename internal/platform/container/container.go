package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"

	coreask "github.com/jinford/pdf-rag/internal/core/ask"
	"github.com/jinford/pdf-rag/internal/core/collection"
	coreingestion "github.com/jinford/pdf-rag/internal/core/ingestion"
	"github.com/jinford/pdf-rag/internal/core/ingestion/chunk"
	"github.com/jinford/pdf-rag/internal/core/llm"
	coresearch "github.com/jinford/pdf-rag/internal/core/search"
	"github.com/jinford/pdf-rag/internal/infra/filestore"
	"github.com/jinford/pdf-rag/internal/infra/ollama"
	"github.com/jinford/pdf-rag/internal/infra/openai"
	"github.com/jinford/pdf-rag/internal/infra/pdf"
	"github.com/jinford/pdf-rag/internal/infra/postgres"
	"github.com/jinford/pdf-rag/internal/infra/sqlite"
	"github.com/jinford/pdf-rag/internal/infra/tokenizer"
	"github.com/jinford/pdf-rag/internal/platform/config"
)

// tokenEncoding は Embedding のトークン予算とプロンプト計測に使うエンコーディング
const tokenEncoding = "cl100k_base"

// ServiceContainer は質問応答エンジンの依存関係を保持する
// 1つの検証済み Config から全コンポーネントを組み立てる
type ServiceContainer struct {
	Ingestor          *coreingestion.Ingestor
	Retriever         *coresearch.Retriever
	Pipeline          *coreask.Pipeline
	AskService        *coreask.Service
	CollectionService *collection.Service

	index  collection.Index
	logger *slog.Logger
}

type containerOptions struct {
	logger       *slog.Logger
	embedder     llm.Embedder
	llmClient    llm.Client
	index        collection.Index
	loader       coreingestion.DocumentLoader
	tokenCounter llm.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder llm.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client llm.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerIndex はベクトル索引を差し替える
// 差し替えた索引も Close で閉じられる
func WithContainerIndex(index collection.Index) ContainerOption {
	return func(opts *containerOptions) {
		opts.index = index
	}
}

// WithContainerDocumentLoader は文書ローダーを差し替える
func WithContainerDocumentLoader(loader coreingestion.DocumentLoader) ContainerOption {
	return func(opts *containerOptions) {
		opts.loader = loader
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter llm.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger
	p := cfg.Pipeline

	// TokenCounter (tiktoken)
	tokenCounter := options.tokenCounter
	if tokenCounter == nil {
		counter, err := tokenizer.NewCounter(tokenEncoding)
		if err != nil {
			// トークン計測は診断用途のため、読み込めなくても起動は継続する
			logger.Warn("TokenCounter の初期化に失敗したためトークン計測を無効化します", "error", err)
		} else {
			tokenCounter = counter
		}
	}

	// Embedder (Ollama / OpenAI)
	embedder := options.embedder
	if embedder == nil {
		var err error
		embedder, err = newEmbedder(cfg, tokenCounter)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
	}

	// LLMClient (OpenAI 互換)
	llmClient := options.llmClient
	if llmClient == nil {
		client, err := openai.NewClient(
			p.LLMAPIKey,
			p.LLMModel,
			openai.WithBaseURL(p.LLMBaseURL),
			openai.WithTimeout(p.RequestTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
		llmClient = client
	}

	// Chunker
	chunker, err := chunk.NewRecursiveChunker(p.ChunkSize, p.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	// Originals (ファイル保管庫)
	originals, err := filestore.NewOriginals(p.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("元ファイル保管庫の初期化に失敗しました: %w", err)
	}

	// DocumentLoader (PDF)
	loader := options.loader
	if loader == nil {
		loader = pdf.NewLoader(pdf.WithLogger(logger))
	}

	// Index (SQLite / PostgreSQL)
	index := options.index
	if index == nil {
		index, err = newIndex(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("ベクトル索引の初期化に失敗しました: %w", err)
		}
	}

	// Ingestor
	pipelineConfig := coreingestion.DefaultPipelineConfig()
	pipelineConfig.EmbeddingWorkerCount = cfg.Embedding.Concurrency
	ingestor := coreingestion.NewIngestor(
		loader,
		chunker,
		embedder,
		index,
		originals,
		coreingestion.WithIngestorLogger(logger),
		coreingestion.WithIngestorPipelineConfig(pipelineConfig),
	)

	// Retriever
	retriever := coresearch.NewRetriever(
		index,
		embedder,
		coresearch.WithRetrieverLogger(logger),
		coresearch.WithDefaultK(p.RetrievalK),
	)

	// Pipeline / AskService
	pipelineOpts := []coreask.PipelineOption{
		coreask.WithPipelineLogger(logger),
		coreask.WithRetrievalK(p.RetrievalK),
		coreask.WithTemperature(p.Temperature),
		coreask.WithTimeout(p.RequestTimeout),
	}
	if tokenCounter != nil {
		pipelineOpts = append(pipelineOpts, coreask.WithTokenCounter(tokenCounter))
	}
	pipeline := coreask.NewPipeline(retriever, llmClient, pipelineOpts...)
	askService := coreask.NewService(pipeline, coreask.WithServiceLogger(logger))

	// CollectionService
	collectionService := collection.NewService(index, originals, collection.WithServiceLogger(logger))

	logger.Debug("コンテナを初期化しました",
		"backend", cfg.VectorBackend,
		"embeddingProvider", cfg.Embedding.Provider,
		"embeddingModel", embedder.ModelName(),
		"llmModel", p.LLMModel,
	)

	return &ServiceContainer{
		Ingestor:          ingestor,
		Retriever:         retriever,
		Pipeline:          pipeline,
		AskService:        askService,
		CollectionService: collectionService,
		index:             index,
		logger:            logger,
	}, nil
}

func newEmbedder(cfg *config.Config, counter llm.TokenCounter) (llm.Embedder, error) {
	p := cfg.Pipeline
	e := cfg.Embedding

	switch e.Provider {
	case config.ProviderOpenAI:
		opts := []openai.EmbedderOption{
			openai.WithEmbeddingModel(p.EmbeddingModel),
			openai.WithEmbeddingDimension(e.Dimension),
			openai.WithEmbeddingTimeout(p.RequestTimeout),
		}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithEmbeddingBaseURL(e.BaseURL))
		}
		if budget, ok := counter.(openai.TokenBudget); ok {
			opts = append(opts, openai.WithTokenBudget(budget))
		}
		return openai.NewEmbedder(e.APIKey, opts...)
	case config.ProviderOllama:
		opts := []ollama.EmbedderOption{
			ollama.WithModel(p.EmbeddingModel),
			ollama.WithTimeout(p.RequestTimeout),
		}
		if e.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(e.BaseURL))
		}
		return ollama.NewEmbedder(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, e.Provider)
	}
}

func newIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (collection.Index, error) {
	switch cfg.VectorBackend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.Pipeline.StorageDir, sqlite.WithLogger(logger))
	case config.BackendPostgres:
		db := cfg.Database
		pool, err := postgres.Connect(ctx, postgres.ConnectionParams{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Password: db.Password,
			DBName:   db.DBName,
			SSLMode:  db.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		index, err := postgres.NewIndex(ctx, pool, postgres.WithLogger(logger))
		if err != nil {
			pool.Close()
			return nil, err
		}
		return index, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", config.ErrInvalidConfig, cfg.VectorBackend)
	}
}

// Ingest は PDF を取り込む。name が空の場合はファイル名から導出する
func (c *ServiceContainer) Ingest(ctx context.Context, path, name string) (*coreingestion.IngestResult, error) {
	return c.Ingestor.Ingest(ctx, path, name)
}

// ListCollections はコレクション一覧を返す
func (c *ServiceContainer) ListCollections(ctx context.Context) collection.ListResult {
	return c.CollectionService.List(ctx)
}

// DeleteCollection はコレクションを削除する
func (c *ServiceContainer) DeleteCollection(ctx context.Context, name string) (collection.DeleteOutcome, error) {
	return c.CollectionService.Delete(ctx, name)
}

// SanitizeCollectionName は任意の文字列を有効なコレクション名に変換する
func (c *ServiceContainer) SanitizeCollectionName(raw string) string {
	return collection.Sanitize(raw)
}

// OriginalPath は保管済みの元ファイルのパスを返す
func (c *ServiceContainer) OriginalPath(ctx context.Context, name string) (mo.Option[string], error) {
	return c.CollectionService.OriginalPath(ctx, name)
}

// CountChunks はコレクションのチャンク数を返す
func (c *ServiceContainer) CountChunks(ctx context.Context, name string) (int, error) {
	return c.CollectionService.Count(ctx, name)
}

// Retrieve は質問に関連するチャンクを設定済みの件数だけ取得する
func (c *ServiceContainer) Retrieve(ctx context.Context, name, question string) (coresearch.RetrievedContext, error) {
	return c.Retriever.Retrieve(ctx, name, question, 0)
}

// Answer は collection に対する質問へ回答する
func (c *ServiceContainer) Answer(ctx context.Context, name, question string) (*coreask.Answer, error) {
	return c.AskService.Answer(ctx, name, question)
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() error {
	if c == nil || c.index == nil {
		return nil
	}
	if err := c.index.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return nil
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
