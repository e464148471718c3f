// Package testutil はテスト用のフィクスチャを提供する
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// MinimalPDF は各要素を1ページのテキストとする最小構成のPDFを生成する
// ページ内の改行は行送りとして描画する
func MinimalPDF(pages ...string) []byte {
	const (
		catalogID = 1
		pagesID   = 2
		fontID    = 3
	)

	var objects []string
	objects = append(objects, "") // catalog (placeholder)
	objects = append(objects, "") // pages (placeholder)
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	kids := make([]string, 0, len(pages))
	for _, text := range pages {
		pageID := len(objects) + 1
		contentID := pageID + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))

		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesID, fontID, contentID,
		))

		var stream strings.Builder
		stream.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
		for _, line := range strings.Split(text, "\n") {
			fmt.Fprintf(&stream, "(%s) Tj T*\n", escapePDFString(line))
		}
		stream.WriteString("ET")
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", stream.Len(), stream.String()))
	}

	objects[catalogID-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesID)
	objects[pagesID-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalogID, xref)

	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
