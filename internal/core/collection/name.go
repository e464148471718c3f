package collection

import (
	"fmt"
	"strings"
)

const (
	// MinNameLength はコレクション名の最小長
	MinNameLength = 3
	// MaxNameLength はコレクション名の最大長
	MaxNameLength = 512

	shortNamePrefix   = "col_"
	emptyNameFallback = "collection"
)

// Sanitize は任意の文字列を有効なコレクション名に変換する純粋関数
//
// 許可されない文字は '_' に置換し、先頭・末尾の英数字以外を取り除く。
// 長すぎる名前は切り詰め、短すぎる名前には接頭辞を付ける。
// Sanitize(Sanitize(x)) == Sanitize(x) が常に成り立つ。
func Sanitize(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		if isNameRune(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}

	name := trimNonAlnum(sb.String())
	if len(name) > MaxNameLength {
		name = trimNonAlnum(name[:MaxNameLength])
	}

	switch {
	case name == "":
		return emptyNameFallback
	case len(name) < MinNameLength:
		return shortNamePrefix + name
	}
	return name
}

// Validate はコレクション名が命名規則を満たすか検証する
func Validate(name string) error {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return fmt.Errorf("%w: length %d not in [%d, %d]", ErrInvalidName, len(name), MinNameLength, MaxNameLength)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	if !isAlnum(rune(name[0])) || !isAlnum(rune(name[len(name)-1])) {
		return fmt.Errorf("%w: %q must start and end with an alphanumeric character", ErrInvalidName, name)
	}
	return nil
}

func trimNonAlnum(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return !isAlnum(r) })
}

func isNameRune(r rune) bool {
	return isAlnum(r) || r == '.' || r == '_' || r == '-'
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
