package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/mo"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jinford/pdf-rag/internal/core/collection"
	"github.com/jinford/pdf-rag/internal/infra/sqlite/migrations"
)

// DefaultFileName は索引データベースのファイル名
const DefaultFileName = "index.db"

// deleteBatchSize は IN 句1回あたりのID数
const deleteBatchSize = 500

// Index は SQLite にチャンクとベクトルを保存するベクトル索引
//
// ベクトルは BLOB として保存し、類似度は Go 側で全件走査して計算する。
// 書き込みは writeMu で直列化し、読み取りは WAL により並行に実行できる。
type Index struct {
	db      *sql.DB
	writeMu sync.Mutex
	logger  *slog.Logger
}

// IndexOption は Index のオプション設定
type IndexOption func(*Index)

// WithLogger は Index にロガーを設定する
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		i.logger = logger
	}
}

// Open は dataDir 配下の索引データベースを開く（存在しない場合は作成する）
func Open(dataDir string, opts ...IndexOption) (*Index, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	idx := &Index{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}

	if err := idx.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return idx, nil
}

// Close はデータベース接続を閉じる
func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) migrate(fsys embed.FS) error {
	_, err := i.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := i.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := i.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := i.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
	}
	return nil
}

// Upsert はチャンクとベクトルを書き込む
// 既存のコレクションには追記し、同じIDのチャンクは置き換える
func (i *Index) Upsert(ctx context.Context, name string, chunks []collection.Chunk, vectors [][]float32) (int, error) {
	if err := collection.Validate(name); err != nil {
		return 0, err
	}
	dimension, err := collection.CheckVectors(chunks, vectors)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stored, err := collectionDimension(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if d, ok := stored.Get(); ok {
		if d != dimension {
			return 0, fmt.Errorf("%w: collection %q has %d dimensions, got %d", collection.ErrDimensionMismatch, name, d, dimension)
		}
	} else {
		if _, err := tx.ExecContext(ctx, "INSERT INTO collections (name, dimension) VALUES (?, ?)", name, dimension); err != nil {
			return 0, fmt.Errorf("failed to create collection: %w", err)
		}
	}

	var nextOrdinal int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(ordinal) + 1, 0) FROM chunks WHERE collection = ?", name).Scan(&nextOrdinal); err != nil {
		return 0, fmt.Errorf("failed to get next ordinal: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, ordinal, content, page, source, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			content = excluded.content,
			page = excluded.page,
			source = excluded.source,
			embedding = excluded.embedding
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for n, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, name, nextOrdinal+n, c.Text, nullPage(c.Page), c.Source, encodeVector(vectors[n])); err != nil {
			return 0, fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	i.logger.Debug("チャンクを書き込みました",
		"collection", name,
		"chunks", len(chunks),
		"dimension", dimension,
	)
	return len(chunks), nil
}

// Query はコサイン類似度の降順で最大 k 件を返す
func (i *Index) Query(ctx context.Context, name string, vector []float32, k int) ([]collection.ScoredChunk, error) {
	if k <= 0 {
		return []collection.ScoredChunk{}, nil
	}
	if len(vector) == 0 {
		return nil, collection.ErrEmptyVector
	}

	stored, err := collectionDimension(ctx, i.db, name)
	if err != nil {
		return nil, err
	}
	d, ok := stored.Get()
	if !ok {
		return []collection.ScoredChunk{}, nil
	}
	if d != len(vector) {
		return nil, fmt.Errorf("%w: collection %q has %d dimensions, got %d", collection.ErrDimensionMismatch, name, d, len(vector))
	}

	rows, err := i.db.QueryContext(ctx, `
		SELECT id, content, page, source, embedding
		FROM chunks
		WHERE collection = ?
		ORDER BY ordinal
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []collection.ScoredChunk
	for rows.Next() {
		var (
			c    collection.Chunk
			page sql.NullInt64
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &page, &c.Source, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		embedding, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if len(embedding) != len(vector) {
			return nil, fmt.Errorf("%w: chunk %s", collection.ErrDimensionMismatch, c.ID)
		}
		c.Page = optionalPage(page)
		results = append(results, collection.ScoredChunk{
			Chunk: c,
			Score: cosineSimilarity(vector, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []collection.ScoredChunk{}
	}
	return results, nil
}

// List はコレクション名を名前順に返す
func (i *Index) List(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return names, nil
}

// Delete はコレクションとそのチャンクを削除する
func (i *Index) Delete(ctx context.Context, name string) (bool, error) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", name); err != nil {
		return false, fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete collection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check deleted rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected > 0, nil
}

// DeleteChunks は指定したチャンクを取り除き、空になったコレクションを削除する
func (i *Index) DeleteChunks(ctx context.Context, name string, ids []string) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(ids); start += deleteBatchSize {
		batch := ids[start:min(start+deleteBatchSize, len(ids))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, name)
		for _, id := range batch {
			args = append(args, id)
		}
		query := "DELETE FROM chunks WHERE collection = ? AND id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM collections
		WHERE name = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE collection = ?)
	`, name, name); err != nil {
		return fmt.Errorf("failed to delete empty collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count はコレクションのチャンク数を返す
func (i *Index) Count(ctx context.Context, name string) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func collectionDimension(ctx context.Context, q queryRower, name string) (mo.Option[int], error) {
	var d int
	err := q.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[int](), nil
	}
	if err != nil {
		return mo.None[int](), fmt.Errorf("failed to read collection: %w", err)
	}
	return mo.Some(d), nil
}

func nullPage(page mo.Option[int]) sql.NullInt64 {
	if p, ok := page.Get(); ok {
		return sql.NullInt64{Int64: int64(p), Valid: true}
	}
	return sql.NullInt64{}
}

func optionalPage(page sql.NullInt64) mo.Option[int] {
	if page.Valid {
		return mo.Some(int(page.Int64))
	}
	return mo.None[int]()
}

// インターフェース実装の確認
var _ collection.Index = (*Index)(nil)
