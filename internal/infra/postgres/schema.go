package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements はベクトル索引のスキーマ
// embedding 列は次元を固定せず、コレクションごとの次元数は collections.dimension で管理する
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		content TEXT NOT NULL,
		page INTEGER,
		source TEXT NOT NULL,
		embedding vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_collection_ordinal ON chunks(collection, ordinal)`,
}

// EnsureSchema はスキーマが存在しなければ作成する
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
