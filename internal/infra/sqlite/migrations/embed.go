// Package migrations はSQLite索引のスキーマ定義を埋め込む
package migrations

import "embed"

// FS はコンパイル時に埋め込まれたマイグレーションSQL
//
//go:embed *.sql
var FS embed.FS
