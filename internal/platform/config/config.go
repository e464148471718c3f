package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig は設定値が不正な場合のエラー
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	// BackendSQLite はファイルベースの索引
	BackendSQLite = "sqlite"
	// BackendPostgres は pgvector を使用した索引
	BackendPostgres = "postgres"

	// ProviderOllama はローカルの Ollama による Embedding
	ProviderOllama = "ollama"
	// ProviderOpenAI は OpenAI 互換APIによる Embedding
	ProviderOpenAI = "openai"
)

// Config はアプリケーション全体の設定を保持します
// Load 後に変更しないこと
type Config struct {
	// 質問応答パイプライン設定
	Pipeline PipelineConfig

	// Embedding設定
	Embedding EmbeddingConfig

	// 索引のバックエンド（sqlite / postgres）
	VectorBackend string

	// Database設定（postgres バックエンドのみ）
	Database DatabaseConfig

	// ログ設定
	Log LogConfig
}

// PipelineConfig は取り込み・検索・回答生成の設定
type PipelineConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	RetrievalK     int
	Temperature    float64
	EmbeddingModel string
	LLMModel       string
	LLMBaseURL     string
	LLMAPIKey      string
	RequestTimeout time.Duration
	StorageDir     string
}

// EmbeddingConfig は Embedding プロバイダの設定
type EmbeddingConfig struct {
	Provider    string // "ollama" or "openai"
	BaseURL     string // 空の場合はプロバイダの既定値
	APIKey      string
	Dimension   int // openai のみ。0 はモデルの既定次元
	Concurrency int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LogConfig はロガー設定
type LogConfig struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// ConfigurationError は設定の検証エラーを表す
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// Load は環境変数または.envファイルから設定を読み込み、検証します
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	env := &envReader{}

	provider := strings.ToLower(env.getEnv("EMBEDDING_PROVIDER", ProviderOllama))
	defaultEmbeddingModel := "all-minilm"
	if provider == ProviderOpenAI {
		defaultEmbeddingModel = "text-embedding-3-small"
	}
	llmAPIKey := env.getEnv("LLM_API_KEY", "")

	cfg := &Config{
		Pipeline: PipelineConfig{
			ChunkSize:      env.getEnvAsInt("CHUNK_SIZE", 1024),
			ChunkOverlap:   env.getEnvAsInt("CHUNK_OVERLAP", 64),
			RetrievalK:     env.getEnvAsInt("RETRIEVAL_K", 5),
			Temperature:    env.getEnvAsFloat("TEMPERATURE", 0.7),
			EmbeddingModel: env.getEnv("EMBEDDING_MODEL", defaultEmbeddingModel),
			LLMModel:       env.getEnv("LLM_MODEL", ""),
			LLMBaseURL:     env.getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			LLMAPIKey:      llmAPIKey,
			RequestTimeout: time.Duration(env.getEnvAsInt("REQUEST_TIMEOUT", 90)) * time.Second,
			StorageDir:     env.getEnv("DB_DIR", "db"),
		},
		Embedding: EmbeddingConfig{
			Provider:    provider,
			BaseURL:     env.getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:      env.getEnv("EMBEDDING_API_KEY", llmAPIKey),
			Dimension:   env.getEnvAsInt("EMBEDDING_DIMENSION", 0),
			Concurrency: env.getEnvAsInt("EMBED_CONCURRENCY", 4),
		},
		VectorBackend: strings.ToLower(env.getEnv("VECTOR_BACKEND", BackendSQLite)),
		Database: DatabaseConfig{
			Host:     env.getEnv("DB_HOST", "localhost"),
			Port:     env.getEnvAsInt("DB_PORT", 5432),
			User:     env.getEnv("DB_USER", "pdfrag"),
			Password: env.getEnv("DB_PASSWORD", ""),
			DBName:   env.getEnv("DB_NAME", "pdfrag"),
			SSLMode:  env.getEnv("DB_SSLMODE", "disable"),
		},
		Log: LogConfig{
			Level:  env.getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
			Format: strings.ToLower(env.getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.validate(env.problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証します
func (c *Config) Validate() error {
	return c.validate(nil)
}

func (c *Config) validate(problems []string) error {
	p := c.Pipeline
	if p.ChunkSize <= 0 {
		problems = append(problems, "CHUNK_SIZE must be positive")
	}
	if p.ChunkOverlap < 0 {
		problems = append(problems, "CHUNK_OVERLAP must not be negative")
	}
	if p.ChunkSize > 0 && p.ChunkOverlap >= p.ChunkSize {
		problems = append(problems, fmt.Sprintf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", p.ChunkOverlap, p.ChunkSize))
	}
	if p.RetrievalK <= 0 {
		problems = append(problems, "RETRIEVAL_K must be positive")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		problems = append(problems, "TEMPERATURE must be within [0, 2]")
	}
	if p.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be positive")
	}
	if p.LLMModel == "" {
		problems = append(problems, "LLM_MODEL is required")
	}
	if p.LLMAPIKey == "" {
		problems = append(problems, "LLM_API_KEY is required")
	}
	if p.StorageDir == "" {
		problems = append(problems, "DB_DIR is required")
	}
	if p.EmbeddingModel == "" {
		problems = append(problems, "EMBEDDING_MODEL is required")
	}

	switch c.Embedding.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			problems = append(problems, "EMBEDDING_API_KEY (or LLM_API_KEY) is required for the openai provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider))
	}
	if c.Embedding.Concurrency <= 0 {
		problems = append(problems, "EMBED_CONCURRENCY must be positive")
	}
	if c.Embedding.Dimension < 0 {
		problems = append(problems, "EMBEDDING_DIMENSION must not be negative")
	}

	switch c.VectorBackend {
	case BackendSQLite, BackendPostgres:
	default:
		problems = append(problems, fmt.Sprintf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_FORMAT %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// envReader は環境変数を読み取り、解析できなかった値を記録する
type envReader struct {
	problems []string
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func (r *envReader) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func (r *envReader) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s must be an integer, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func (r *envReader) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s must be a number, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

// getEnvAsLevel は環境変数をログレベルとして取得します
func (r *envReader) getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s must be one of debug, info, warn, error, got %q", key, valueStr))
		return defaultValue
	}
	return level
}
