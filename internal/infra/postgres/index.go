package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

// Index は PostgreSQL + pgvector を使用したベクトル索引
//
// 同一コレクションへの書き込みはアドバイザリロックで直列化する。
// 類似度はコサイン距離演算子 <=> で計算する。
type Index struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// IndexOption は Index のオプション設定
type IndexOption func(*Index)

// WithLogger は Index にロガーを設定する
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		i.logger = logger
	}
}

// NewIndex は新しい Index を作成し、スキーマを準備する
func NewIndex(ctx context.Context, pool *pgxpool.Pool, opts ...IndexOption) (*Index, error) {
	idx := &Index{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}

	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return idx, nil
}

// Close は接続プールを閉じる
func (i *Index) Close() error {
	i.pool.Close()
	return nil
}

// transact はトランザクション内で fn を実行する
func (i *Index) transact(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
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

	err = i.transact(ctx, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, name); err != nil {
			return err
		}

		stored, err := collectionDimension(ctx, tx, name)
		if err != nil {
			return err
		}
		if d, ok := stored.Get(); ok {
			if d != dimension {
				return fmt.Errorf("%w: collection %q has %d dimensions, got %d", collection.ErrDimensionMismatch, name, d, dimension)
			}
		} else {
			if _, err := tx.Exec(ctx, "INSERT INTO collections (name, dimension) VALUES ($1, $2)", name, dimension); err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		}

		var nextOrdinal int
		if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(ordinal) + 1, 0) FROM chunks WHERE collection = $1", name).Scan(&nextOrdinal); err != nil {
			return fmt.Errorf("failed to get next ordinal: %w", err)
		}

		batch := &pgx.Batch{}
		for n, c := range chunks {
			batch.Queue(`
				INSERT INTO chunks (id, collection, ordinal, content, page, source, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					collection = EXCLUDED.collection,
					content = EXCLUDED.content,
					page = EXCLUDED.page,
					source = EXCLUDED.source,
					embedding = EXCLUDED.embedding
			`, c.ID, name, nextOrdinal+n, c.Text, pagePtr(c.Page), c.Source, pgvector.NewVector(vectors[n]))
		}

		br := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
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

	stored, err := collectionDimension(ctx, i.pool, name)
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

	rows, err := i.pool.Query(ctx, `
		SELECT id, content, page, source, 1 - (embedding <=> $2) AS score
		FROM chunks
		WHERE collection = $1
		ORDER BY embedding <=> $2, ordinal
		LIMIT $3
	`, name, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := []collection.ScoredChunk{}
	for rows.Next() {
		var (
			c     collection.Chunk
			page  *int32
			score float64
		)
		if err := rows.Scan(&c.ID, &c.Text, &page, &c.Source, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Page = optionalPage(page)
		results = append(results, collection.ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return results, nil
}

// List はコレクション名を名前順に返す
func (i *Index) List(ctx context.Context) ([]string, error) {
	rows, err := i.pool.Query(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan collections: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Delete はコレクションとそのチャンクを削除する
func (i *Index) Delete(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := i.transact(ctx, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, name); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM collections WHERE name = $1", name)
		if err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// DeleteChunks は指定したチャンクを取り除き、空になったコレクションを削除する
func (i *Index) DeleteChunks(ctx context.Context, name string, ids []string) error {
	return i.transact(ctx, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, name); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE collection = $1 AND id = ANY($2)", name, ids); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM collections
			WHERE name = $1 AND NOT EXISTS (SELECT 1 FROM chunks WHERE collection = $1)
		`, name); err != nil {
			return fmt.Errorf("failed to delete empty collection: %w", err)
		}
		return nil
	})
}

// Count はコレクションのチャンク数を返す
func (i *Index) Count(ctx context.Context, name string) (int, error) {
	var n int
	if err := i.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = $1", name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func collectionDimension(ctx context.Context, q queryRower, name string) (mo.Option[int], error) {
	var d int
	err := q.QueryRow(ctx, "SELECT dimension FROM collections WHERE name = $1", name).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[int](), nil
	}
	if err != nil {
		return mo.None[int](), fmt.Errorf("failed to read collection: %w", err)
	}
	return mo.Some(d), nil
}

func pagePtr(page mo.Option[int]) *int32 {
	if p, ok := page.Get(); ok {
		v := int32(p)
		return &v
	}
	return nil
}

func optionalPage(page *int32) mo.Option[int] {
	if page == nil {
		return mo.None[int]()
	}
	return mo.Some(int(*page))
}

// インターフェース実装の確認
var _ collection.Index = (*Index)(nil)
