package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockNamespace はコレクション単位のロックIDを他用途のロックと区別する
const lockNamespace = "pdf-rag/collection/"

// GenerateLockID は文字列からロックIDを生成する
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	hash := h.Sum(nil)

	// ハッシュの最初の8バイトをint64として使用
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}
	return id
}

// lockCollection はコレクションへの書き込みを直列化するアドバイザリロックを取得する
// トランザクションスコープのロック（pg_advisory_xact_lock）のため、コミットまたはロールバックで解放される
func lockCollection(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", GenerateLockID(lockNamespace, name)); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}
