package collection

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9]$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "記号と空白を置換", raw: "My File (v2).pdf", want: "My_File__v2_.pdf"},
		{name: "有効な名前はそのまま", raw: "AVV-Labom_11_03_25", want: "AVV-Labom_11_03_25"},
		{name: "先頭末尾の記号を除去", raw: "__report.v1--", want: "report.v1"},
		{name: "短い名前に接頭辞", raw: "a", want: "col_a"},
		{name: "2文字", raw: "ab", want: "col_ab"},
		{name: "空文字", raw: "", want: "collection"},
		{name: "記号のみ", raw: "()!", want: "collection"},
		{name: "非ASCII文字", raw: "Übersicht", want: "bersicht"},
		{name: "ドイツ語の文書名", raw: "Prüfbericht 2024", want: "Pr_fbericht_2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.raw)
			assert.Equal(t, tt.want, got)
			require.NoError(t, Validate(got))
		})
	}
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	raw := strings.Repeat("a", MaxNameLength-1) + "_" + strings.Repeat("b", 100)
	got := Sanitize(raw)

	assert.LessOrEqual(t, len(got), MaxNameLength)
	assert.Equal(t, strings.Repeat("a", MaxNameLength-1), got)
	require.NoError(t, Validate(got))
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"", "x", "xy", "My File (v2).pdf", "  spaced  out  ", "...", "a.b", "-_-",
		"日本語のファイル名.pdf", strings.Repeat("z", 600), strings.Repeat("_a", 300),
		"col_", "collection", "a__b", "ÄÖÜ.pdf",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input=%q", in)
		assert.Regexp(t, validName, once, "input=%q", in)
		assert.GreaterOrEqual(t, len(once), MinNameLength)
		assert.LessOrEqual(t, len(once), MaxNameLength)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("abc"))
	assert.ErrorIs(t, Validate("ab"), ErrInvalidName)
	assert.ErrorIs(t, Validate("a b"), ErrInvalidName)
	assert.ErrorIs(t, Validate("_abc"), ErrInvalidName)
	assert.ErrorIs(t, Validate("abc."), ErrInvalidName)
	assert.ErrorIs(t, Validate(strings.Repeat("a", MaxNameLength+1)), ErrInvalidName)
}
