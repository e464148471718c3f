package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/ingestion"
	"github.com/jinford/pdf-rag/internal/core/ingestion/chunk"
)

// MIMEType はPDFのMIMEタイプ
const MIMEType = "application/pdf"

var (
	// ErrNotPDF は入力がPDFではない場合のエラー
	ErrNotPDF = errors.New("file is not a PDF")

	// ErrUnreadable はPDFを解析できない場合のエラー
	ErrUnreadable = errors.New("unreadable PDF")
)

// Loader はPDFファイルをページ単位のテキストとして読み込む
type Loader struct {
	logger *slog.Logger
}

// LoaderOption は Loader のオプション設定
type LoaderOption func(*Loader)

// WithLogger は Loader にロガーを設定する
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load は path のPDFを読み込む
// テキストを持たないページは結果に含めない。ページ番号は0始まり
func (l *Loader) Load(ctx context.Context, path string) (*ingestion.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Parse(ctx, filepath.Base(path), data)
}

// Parse はバイト列のPDFを解析する
func (l *Loader) Parse(ctx context.Context, source string, data []byte) (*ingestion.Document, error) {
	if mtype := mimetype.Detect(data); !mtype.Is(MIMEType) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotPDF, mtype.String())
	}

	pages, total, err := l.extractPages(ctx, data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("PDFを読み込みました",
		"source", source,
		"totalPages", total,
		"textPages", len(pages),
	)

	return &ingestion.Document{
		Source: source,
		Pages:  pages,
		Raw:    data,
	}, nil
}

// extractPages はページごとのテキストを抽出する
// 解析ライブラリは壊れた入力で panic することがあるため、エラーに変換する
func (l *Loader) extractPages(ctx context.Context, data []byte) (pages []chunk.Page, total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, total = nil, 0
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	total = reader.NumPage()
	pages = make([]chunk.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("ページのテキスト抽出に失敗したためスキップします",
				"page", i,
				"error", err,
			)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, chunk.Page{Text: text, Number: mo.Some(i - 1)})
	}
	return pages, total, nil
}

// インターフェース実装の確認
var _ ingestion.DocumentLoader = (*Loader)(nil)
