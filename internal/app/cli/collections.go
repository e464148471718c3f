package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-rag/internal/core/collection"
	"github.com/jinford/pdf-rag/internal/platform/container"
)

// ErrNoOriginal は元ファイルが保管されていない場合のエラー
var ErrNoOriginal = errors.New("no original file retained")

// CollectionListAction はコレクション一覧を表示する
func CollectionListAction(opts ...container.ContainerOption) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return withAppContext(ctx, cmd, opts, func(appCtx *AppContext) error {
			result := appCtx.Container.ListCollections(ctx)
			if result.Degraded {
				fmt.Fprintf(stderr(cmd), "warning: collection list is unavailable: %v\n", result.Err)
			}

			out := stdout(cmd)
			if len(result.Names) == 0 {
				fmt.Fprintln(out, "No collections")
				return nil
			}
			for _, name := range result.Names {
				count, err := appCtx.Container.CountChunks(ctx, name)
				if err != nil {
					fmt.Fprintln(out, name)
					continue
				}
				fmt.Fprintf(out, "%s\t%d chunks\n", name, count)
			}
			return nil
		})
	}
}

// CollectionDeleteAction はコレクションを削除する
func CollectionDeleteAction(opts ...container.ContainerOption) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		name := cmd.String("name")

		return withAppContext(ctx, cmd, opts, func(appCtx *AppContext) error {
			outcome, err := appCtx.Container.DeleteCollection(ctx, name)
			if err != nil {
				return fmt.Errorf("コレクションの削除に失敗: %w", err)
			}

			switch outcome {
			case collection.DeleteRemoved:
				fmt.Fprintf(stdout(cmd), "Deleted collection %q\n", name)
			default:
				fmt.Fprintf(stdout(cmd), "Collection %q not found\n", name)
			}
			return nil
		})
	}
}

// CollectionSanitizeAction は入力をコレクション名に変換して表示する
// 設定を読み込まずに実行できる
func CollectionSanitizeAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("変換する名前を指定してください")
	}
	fmt.Fprintln(stdout(cmd), collection.Sanitize(cmd.Args().First()))
	return nil
}

// CollectionOriginalAction は保管済み元ファイルのパスを表示する
func CollectionOriginalAction(opts ...container.ContainerOption) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		name := cmd.String("name")

		return withAppContext(ctx, cmd, opts, func(appCtx *AppContext) error {
			path, err := appCtx.Container.OriginalPath(ctx, name)
			if err != nil {
				return err
			}
			p, ok := path.Get()
			if !ok {
				return fmt.Errorf("%w: %q", ErrNoOriginal, name)
			}
			fmt.Fprintln(stdout(cmd), p)
			return nil
		})
	}
}
