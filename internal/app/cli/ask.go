package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	coreask "github.com/jinford/pdf-rag/internal/core/ask"
	"github.com/jinford/pdf-rag/internal/core/search"
	"github.com/jinford/pdf-rag/internal/platform/container"
)

// AskAction は質問応答コマンドのアクションを返す
func AskAction(opts ...container.ContainerOption) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		name := cmd.String("collection")
		showSources := cmd.Bool("show-sources")
		showPrompt := cmd.Bool("show-prompt")

		// 質問文の取得
		question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
		if question == "" {
			return fmt.Errorf("質問文を指定してください")
		}

		return withAppContext(ctx, cmd, opts, func(appCtx *AppContext) error {
			answer, err := appCtx.Container.Answer(ctx, name, question)
			if err != nil {
				var genErr *coreask.GenerationError
				if errors.As(err, &genErr) {
					// 検索結果は得られているため、参照ソースは表示する
					fmt.Fprintf(stderr(cmd), "Found %d passages but could not generate an answer: %v\n",
						len(genErr.State.Chunks), genErr.Err)
					if showSources {
						printSources(stdout(cmd), genErr.State.Chunks)
					}
				}
				appCtx.Logger().Error("質問応答に失敗しました", "collection", name, "error", err)
				return err
			}

			out := stdout(cmd)
			if showPrompt {
				fmt.Fprintln(out, "--- Prompt ---")
				fmt.Fprintln(out, answer.Prompt)
				fmt.Fprintln(out, "--- Answer ---")
			}
			fmt.Fprintln(out, answer.Text)

			// --show-sourcesフラグが指定されている場合、参照ソースも出力
			if showSources {
				printSources(out, answer.Chunks)
			}
			return nil
		})
	}
}

func printSources(w io.Writer, chunks []search.RetrievedChunk) {
	if len(chunks) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Sources ---")
	for i, c := range chunks {
		fmt.Fprintf(w, "[%d] %s (%s) score: %.4f\n",
			i+1,
			c.Citation,
			c.Chunk.Source,
			c.Score,
		)
	}
}
