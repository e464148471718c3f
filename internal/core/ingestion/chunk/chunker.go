package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

// DefaultSeparators は段落、行、単語、文字の順に試す区切り文字
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Page はページ単位の文書テキスト
type Page struct {
	Text   string
	Number mo.Option[int] // 0始まりのページ番号。ページ概念のない文書では None
}

// RecursiveChunker は区切り文字を段階的に細かくしながら文書を固定長チャンクに分割する
//
// 長さはルーン数で数える。各チャンクは最大 size 文字で、次のチャンクの先頭には
// 直前のチャンク末尾から最大 overlap 文字が繰り返される。
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker は新しい RecursiveChunker を作成する
// overlap >= size のような設定は分割時ではなくここでエラーになる
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	switch {
	case size <= 0:
		return nil, &ConfigError{Size: size, Overlap: overlap, Reason: "chunk size must be positive"}
	case overlap < 0:
		return nil, &ConfigError{Size: size, Overlap: overlap, Reason: "chunk overlap must not be negative"}
	case overlap >= size:
		return nil, &ConfigError{Size: size, Overlap: overlap, Reason: "chunk overlap must be smaller than chunk size"}
	}

	return &RecursiveChunker{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// piece はテキスト内のルーン位置付きの断片
type piece struct {
	text  string
	start int
}

// Split はページ列をチャンク列に分割する
// ページごとに独立して分割するため、チャンクがページをまたぐことはなく、
// 各チャンクは元のページ番号を引き継ぐ
func (c *RecursiveChunker) Split(source string, pages []Page) []collection.Chunk {
	var chunks []collection.Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		for _, pc := range c.splitRecursive(p.Text, 0, c.separators) {
			chunks = append(chunks, collection.Chunk{
				ID:     uuid.NewString(),
				Text:   pc.text,
				Page:   p.Number,
				Source: source,
			})
		}
	}
	return chunks
}

// SplitText は単一テキストを分割し、チャンク本文のみを返す
func (c *RecursiveChunker) SplitText(text string) []string {
	pieces := c.splitRecursive(text, 0, c.separators)
	texts := make([]string, 0, len(pieces))
	for _, pc := range pieces {
		texts = append(texts, pc.text)
	}
	return texts
}

func (c *RecursiveChunker) splitRecursive(text string, base int, separators []string) []piece {
	// 使用する区切り文字を選択
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var final []piece
	var good []piece
	for _, seg := range splitWithOffsets(text, base, separator) {
		if utf8.RuneCountInString(seg.text) < c.size {
			good = append(good, seg)
			continue
		}

		if len(good) > 0 {
			final = append(final, c.merge(good, separator)...)
			good = nil
		}

		if len(next) == 0 {
			if p, ok := trimPiece(seg); ok {
				final = append(final, p)
			}
			continue
		}
		final = append(final, c.splitRecursive(seg.text, seg.start, next)...)
	}

	if len(good) > 0 {
		final = append(final, c.merge(good, separator)...)
	}
	return final
}

// merge は断片を size 以内に収まるよう連結する
// 上限を超えたら現在の窓を出力し、窓の長さが overlap 以下になるまで先頭から捨てる
func (c *RecursiveChunker) merge(splits []piece, separator string) []piece {
	sepLen := utf8.RuneCountInString(separator)

	var out []piece
	var window []piece
	total := 0

	for _, sp := range splits {
		length := utf8.RuneCountInString(sp.text)
		added := length
		if len(window) > 0 {
			added += sepLen
		}

		if total+added > c.size && len(window) > 0 {
			if p, ok := joinPieces(window, separator); ok {
				out = append(out, p)
			}
			for len(window) > 0 && (total > c.overlap || total+sepLen+length > c.size) {
				total -= utf8.RuneCountInString(window[0].text)
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}

		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, sp)
		total += length
	}

	if p, ok := joinPieces(window, separator); ok {
		out = append(out, p)
	}
	return out
}

func splitWithOffsets(text string, base int, separator string) []piece {
	if separator == "" {
		pieces := make([]piece, 0, utf8.RuneCountInString(text))
		i := base
		for _, r := range text {
			pieces = append(pieces, piece{text: string(r), start: i})
			i++
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	sepLen := utf8.RuneCountInString(separator)
	pieces := make([]piece, 0, len(parts))
	offset := base
	for _, part := range parts {
		if part != "" {
			pieces = append(pieces, piece{text: part, start: offset})
		}
		offset += utf8.RuneCountInString(part) + sepLen
	}
	return pieces
}

func joinPieces(window []piece, separator string) (piece, bool) {
	if len(window) == 0 {
		return piece{}, false
	}
	texts := make([]string, len(window))
	for i, w := range window {
		texts[i] = w.text
	}
	return trimPiece(piece{text: strings.Join(texts, separator), start: window[0].start})
}

// trimPiece は前後の空白を取り除き、開始位置を補正する。空になった断片は捨てる
func trimPiece(p piece) (piece, bool) {
	trimmedLeft := strings.TrimLeftFunc(p.text, unicode.IsSpace)
	shift := utf8.RuneCountInString(p.text) - utf8.RuneCountInString(trimmedLeft)
	text := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
	if text == "" {
		return piece{}, false
	}
	return piece{text: text, start: p.start + shift}, true
}
