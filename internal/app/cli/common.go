package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-rag/internal/platform/config"
	"github.com/jinford/pdf-rag/internal/platform/container"
	"github.com/jinford/pdf-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、AppContext を作成する
func NewAppContext(ctx context.Context, envFile string, opts ...container.ContainerOption) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	containerOpts := append([]container.ContainerOption{container.WithContainerLogger(appLogger)}, opts...)
	cont, err := container.NewContainer(ctx, cfg, containerOpts...)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		if err := ac.Container.Close(); err != nil {
			ac.Logger().Warn("リソースの解放に失敗しました", "error", err)
		}
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// withAppContext は AppContext を生成してアクションを実行し、終了後に解放する
func withAppContext(ctx context.Context, cmd *cli.Command, opts []container.ContainerOption, fn func(*AppContext) error) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"), opts...)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return fn(appCtx)
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}
