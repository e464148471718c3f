package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreask "github.com/jinford/pdf-rag/internal/core/ask"
	"github.com/jinford/pdf-rag/internal/core/collection"
	"github.com/jinford/pdf-rag/internal/core/llm"
	"github.com/jinford/pdf-rag/internal/platform/config"
	"github.com/jinford/pdf-rag/internal/testutil"
)

const (
	pageOrchard = "The orchard chapter explains how apple trees are planted in spring, how the orchard soil is prepared with compost, " +
		"and how apple blossoms are pollinated by bees. Pruning the apple branches in winter keeps the orchard healthy and " +
		"the harvest of apples in autumn plentiful for the whole village and the cider press."
	pageVolcano = "The volcano chapter describes how magma rises through the crust and erupts as lava. A volcano eruption releases " +
		"ash clouds and volcanic gas, and the lava flows harden into basalt rock. Monitoring stations measure volcano tremors " +
		"so that villages near the lava fields can be evacuated before the eruption."
	pageOcean = "The ocean chapter covers tides and currents. The moon pulls the ocean water and creates high tides and low tides " +
		"twice a day, while warm currents carry heat across the ocean basins. Sailors read the tide tables before leaving " +
		"the harbour so their boats are not stranded on the sand."
)

var passageCitation = regexp.MustCompile(`### \[Passage 1\] \(([^)]+)\)`)

// citingLLM はプロンプト中の先頭パッセージの出典を引用して回答する
type citingLLM struct {
	prompts []string
}

func (c *citingLLM) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.prompts = append(c.prompts, req.Prompt)
	m := passageCitation.FindStringSubmatch(req.Prompt)
	if m == nil {
		return llm.CompletionResponse{Content: coreask.NotInDocumentAnswer, Model: "citing"}, nil
	}
	return llm.CompletionResponse{
		Content: "The passage describes the topic you asked about.\nSources: " + m[1],
		Model:   "citing",
	}, nil
}

// blockingLLM はコンテキストが終了するまで応答しない
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	<-ctx.Done()
	return llm.CompletionResponse{}, ctx.Err()
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pipeline: config.PipelineConfig{
			ChunkSize:      500,
			ChunkOverlap:   50,
			RetrievalK:     3,
			Temperature:    0.7,
			EmbeddingModel: "hash-test",
			LLMModel:       "test-model",
			LLMBaseURL:     "http://127.0.0.1:1/v1",
			LLMAPIKey:      "sk-test",
			RequestTimeout: 5 * time.Second,
			StorageDir:     t.TempDir(),
		},
		Embedding: config.EmbeddingConfig{
			Provider:    config.ProviderOllama,
			Concurrency: 2,
		},
		VectorBackend: config.BackendSQLite,
		Log:           config.LogConfig{Level: slog.LevelInfo, Format: "json"},
	}
}

func newTestContainer(t *testing.T, cfg *config.Config, client llm.Client) *ServiceContainer {
	t.Helper()
	c, err := NewContainer(
		context.Background(),
		cfg,
		WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithContainerEmbedder(testutil.HashEmbedder{}),
		WithContainerLLMClient(client),
		WithContainerTokenCounter(wordCounter{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeManual(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Field Manual (v2).pdf")
	require.NoError(t, os.WriteFile(path, testutil.MinimalPDF(pageOrchard, pageVolcano, pageOcean), 0o600))
	return path
}

func TestEndToEndThreePagePDF(t *testing.T) {
	ctx := context.Background()
	llmClient := &citingLLM{}
	c := newTestContainer(t, testConfig(t), llmClient)

	result, err := c.Ingest(ctx, writeManual(t), "")
	require.NoError(t, err)
	assert.Equal(t, "Field_Manual__v2", result.Collection)
	assert.Equal(t, 3, result.Pages)
	assert.GreaterOrEqual(t, result.Chunks, 3)

	list := c.ListCollections(ctx)
	assert.False(t, list.Degraded)
	assert.Contains(t, list.Names, result.Collection)

	original, err := c.OriginalPath(ctx, result.Collection)
	require.NoError(t, err)
	require.True(t, original.IsPresent())
	assert.FileExists(t, original.MustGet())

	answer, err := c.Answer(ctx, result.Collection, "What does the document say about the volcano eruption and lava?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.Contains(t, answer.Text, "page 2")
	require.NotEmpty(t, answer.Chunks)
	assert.Equal(t, mo.Some(1), answer.Chunks[0].Chunk.Page)
	assert.Equal(t, "page 2", answer.Chunks[0].Citation)
	assert.Contains(t, answer.Prompt, "What does the document say about the volcano eruption and lava?")
	require.Len(t, llmClient.prompts, 1)
}

func TestRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	result, err := c.Ingest(ctx, writeManual(t), "manual")
	require.NoError(t, err)

	retrieved, err := c.Retrieve(ctx, result.Collection, pageOcean)
	require.NoError(t, err)
	require.False(t, retrieved.IsEmpty())
	assert.Contains(t, retrieved.Chunks[0].Chunk.Text, "tide tables")
	assert.Equal(t, mo.Some(2), retrieved.Chunks[0].Chunk.Page)
	assert.LessOrEqual(t, len(retrieved.Chunks), 3)
}

func TestDeleteThenRetrieveIsEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	result, err := c.Ingest(ctx, writeManual(t), "manual")
	require.NoError(t, err)

	outcome, err := c.DeleteCollection(ctx, result.Collection)
	require.NoError(t, err)
	assert.Equal(t, collection.DeleteRemoved, outcome)

	assert.NotContains(t, c.ListCollections(ctx).Names, result.Collection)

	retrieved, err := c.Retrieve(ctx, result.Collection, "volcano")
	require.NoError(t, err)
	assert.True(t, retrieved.IsEmpty())

	original, err := c.OriginalPath(ctx, result.Collection)
	require.NoError(t, err)
	assert.True(t, original.IsAbsent())

	outcome, err = c.DeleteCollection(ctx, result.Collection)
	require.NoError(t, err)
	assert.Equal(t, collection.DeleteNotFound, outcome)
}

func TestAnswerOnMissingCollection(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	answer, err := c.Answer(ctx, "nothing_here", "What is on page 2?")
	require.NoError(t, err)
	assert.Equal(t, coreask.NotInDocumentAnswer, answer.Text)
	assert.Empty(t, answer.Chunks)
	assert.Contains(t, answer.Prompt, "(no passages found)")
}

func TestReingestIsAdditive(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})
	path := writeManual(t)

	first, err := c.Ingest(ctx, path, "manual")
	require.NoError(t, err)
	before, err := c.CountChunks(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, before)

	second, err := c.Ingest(ctx, path, "manual")
	require.NoError(t, err)
	after, err := c.CountChunks(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, before+second.Chunks, after)
}

func TestGenerationTimeoutPreservesChunks(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Pipeline.RequestTimeout = 50 * time.Millisecond
	c := newTestContainer(t, cfg, blockingLLM{})

	_, err := c.Ingest(ctx, writeManual(t), "manual")
	require.NoError(t, err)

	_, err = c.Answer(ctx, "manual", "Tell me about the ocean tides")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrTimeout))

	var genErr *coreask.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.NotEmpty(t, genErr.State.Chunks)
	assert.True(t, genErr.State.Retrieved)
}

func TestSanitizeCollectionName(t *testing.T) {
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	name := c.SanitizeCollectionName("My Report (final).pdf")
	assert.NoError(t, collection.Validate(name))
	assert.Equal(t, name, c.SanitizeCollectionName(name))
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ChunkOverlap = cfg.Pipeline.ChunkSize

	_, err := NewContainer(context.Background(), cfg,
		WithContainerEmbedder(testutil.HashEmbedder{}),
		WithContainerLLMClient(&citingLLM{}),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRawCollectionNameIsSanitizedEverywhere(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	result, err := c.Ingest(ctx, writeManual(t), "My File.pdf")
	require.NoError(t, err)
	assert.Equal(t, "My_File.pdf", result.Collection)

	answer, err := c.Answer(ctx, "My File.pdf", "What does the document say about the volcano eruption and lava?")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Chunks)
	assert.Equal(t, "page 2", answer.Chunks[0].Citation)

	original, err := c.OriginalPath(ctx, "My File.pdf")
	require.NoError(t, err)
	assert.True(t, original.IsPresent())

	outcome, err := c.DeleteCollection(ctx, "My File.pdf")
	require.NoError(t, err)
	assert.Equal(t, collection.DeleteRemoved, outcome)
	assert.NotContains(t, c.ListCollections(ctx).Names, "My_File.pdf")
}

func TestEachPageYieldsItsOwnChunk(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig(t), &citingLLM{})

	path := filepath.Join(t.TempDir(), "short.pdf")
	require.NoError(t, os.WriteFile(path, testutil.MinimalPDF(
		"Orchard: apple trees are planted in spring.",
		"Volcano: lava hardens into basalt.",
		"Ocean: tides follow the moon.",
	), 0o600))

	result, err := c.Ingest(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)

	retrieved, err := c.Retrieve(ctx, "short", "Volcano: lava hardens into basalt.")
	require.NoError(t, err)
	require.False(t, retrieved.IsEmpty())
	assert.Equal(t, "page 2", retrieved.Chunks[0].Citation)
	assert.NotContains(t, retrieved.Chunks[0].Chunk.Text, "Orchard")
}
