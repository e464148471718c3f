package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/pdf-rag/internal/core/search"
)

// NotInDocumentAnswer は文書に情報がない場合にLLMへ返答させる定型文
const NotInDocumentAnswer = "The document does not contain this information."

// BuildPrompt は検索結果から回答生成用のプロンプトを構築する
func BuildPrompt(question string, chunks []search.RetrievedChunk) string {
	var sb strings.Builder

	sb.WriteString("You are an assistant that answers questions about a single PDF document.\n")
	sb.WriteString("Answer the question using ONLY the context passages below.\n\n")

	sb.WriteString("## Guidelines\n")
	sb.WriteString("- Do not use any knowledge that is not contained in the context.\n")
	sb.WriteString(fmt.Sprintf("- If the context does not contain the answer, reply exactly: %q\n", NotInDocumentAnswer))
	sb.WriteString("- End your answer with the page sources you used, e.g. \"Sources: page 2, page 5\".\n\n")

	sb.WriteString("## Context\n")
	if len(chunks) > 0 {
		for i, c := range chunks {
			sb.WriteString(fmt.Sprintf("### [Passage %d] (%s)\n", i+1, c.Citation))
			sb.WriteString(c.Chunk.Text)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("(no passages found)\n\n")
	}

	sb.WriteString("## Citations\n")
	if len(chunks) > 0 {
		for i, c := range chunks {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, c.Citation))
		}
	} else {
		sb.WriteString("(none)\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	sb.WriteString("## Answer\n")

	return sb.String()
}
