package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_K", "TEMPERATURE", "REQUEST_TIMEOUT",
	"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY",
	"EMBEDDING_DIMENSION", "EMBED_CONCURRENCY", "LLM_MODEL", "LLM_BASE_URL", "LLM_API_KEY",
	"DB_DIR", "VECTOR_BACKEND", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"DB_SSLMODE", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv はテスト中の環境変数を空にする（t.Setenv によりテスト後に復元される）
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_MODEL", "mistralai/mistral-7b-instruct")
	t.Setenv("LLM_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 64, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 5, cfg.Pipeline.RetrievalK)
	assert.InDelta(t, 0.7, cfg.Pipeline.Temperature, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.RequestTimeout)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Pipeline.LLMBaseURL)
	assert.Equal(t, "db", cfg.Pipeline.StorageDir)
	assert.Equal(t, "all-minilm", cfg.Pipeline.EmbeddingModel)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 4, cfg.Embedding.Concurrency)
	assert.Equal(t, BackendSQLite, cfg.VectorBackend)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadOpenAIProviderDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "sk-embed")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", cfg.Pipeline.EmbeddingModel)
	assert.Equal(t, "sk-embed", cfg.Embedding.APIKey)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv は既存の環境変数を上書きしないため、対象キーを未設定にする
	for _, key := range []string{"LLM_MODEL", "LLM_API_KEY", "CHUNK_SIZE"} {
		require.NoError(t, os.Unsetenv(key))
	}
	t.Cleanup(func() {
		for _, key := range []string{"LLM_MODEL", "LLM_API_KEY", "CHUNK_SIZE"} {
			_ = os.Unsetenv(key)
		}
	})

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LLM_MODEL=test-model\nLLM_API_KEY=sk-file\nCHUNK_SIZE=500\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.Pipeline.LLMModel)
	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
}

func TestLoadMissingEnvFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "overlap が size 以上", env: map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}},
		{name: "数値でない CHUNK_SIZE", env: map[string]string{"CHUNK_SIZE": "large"}},
		{name: "数値でない TEMPERATURE", env: map[string]string{"TEMPERATURE": "warm"}},
		{name: "範囲外の TEMPERATURE", env: map[string]string{"TEMPERATURE": "3.5"}},
		{name: "k が0", env: map[string]string{"RETRIEVAL_K": "0"}},
		{name: "LLM_API_KEY なし", env: map[string]string{"LLM_API_KEY": ""}},
		{name: "LLM_MODEL なし", env: map[string]string{"LLM_MODEL": ""}},
		{name: "不明なバックエンド", env: map[string]string{"VECTOR_BACKEND": "redis"}},
		{name: "不明なプロバイダ", env: map[string]string{"EMBEDDING_PROVIDER": "cohere"}},
		{name: "不正なログレベル", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "不正なログ形式", env: map[string]string{"LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.NotEmpty(t, cfgErr.Problems)
		})
	}
}
