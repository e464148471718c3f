package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-rag/internal/platform/container"
)

// NewCommand は pdf-rag のコマンドツリーを構築する
// opts はすべてのコマンドのコンテナ構築に渡される
func NewCommand(opts ...container.ContainerOption) *cli.Command {
	return &cli.Command{
		Name:  "pdf-rag",
		Usage: "PDF文書に対する検索拡張生成（RAG）の質問応答エンジン",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "PDFを取り込み、コレクションを作成または追記する",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "取り込むPDFファイルのパス",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "コレクション名（省略時はファイル名から生成）",
					},
				},
				Action: IngestAction(opts...),
			},
			{
				Name:  "collections",
				Usage: "コレクション管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "コレクション一覧を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: CollectionListAction(opts...),
					},
					{
						Name:  "delete",
						Usage: "コレクションと保管済みの元ファイルを削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
						},
						Action: CollectionDeleteAction(opts...),
					},
					{
						Name:      "sanitize",
						Usage:     "任意の文字列を有効なコレクション名に変換",
						ArgsUsage: "<name>",
						Action:    CollectionSanitizeAction,
					},
					{
						Name:  "original",
						Usage: "保管済みの元ファイルのパスを表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
						},
						Action: CollectionOriginalAction(opts...),
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "コレクションに対して質問する",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "コレクション名",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照したページを表示",
					},
					&cli.BoolFlag{
						Name:  "show-prompt",
						Usage: "LLMに送信したプロンプトを表示",
					},
				},
				Action: AskAction(opts...),
			},
		},
	}
}
