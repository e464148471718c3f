package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-rag/internal/platform/container"
)

// IngestAction はPDF取り込みコマンドのアクションを返す
func IngestAction(opts ...container.ContainerOption) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		filePath := cmd.String("file")
		name := cmd.String("collection")

		return withAppContext(ctx, cmd, opts, func(appCtx *AppContext) error {
			result, err := appCtx.Container.Ingest(ctx, filePath, name)
			if err != nil {
				appCtx.Logger().Error("取り込みに失敗しました", "file", filePath, "error", err)
				return err
			}

			fmt.Fprintf(stdout(cmd), "Ingested %d chunks from %d pages into collection %q (%s)\n",
				result.Chunks,
				result.Pages,
				result.Collection,
				result.Duration.Round(time.Millisecond),
			)
			return nil
		})
	}
}
