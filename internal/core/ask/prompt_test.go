package ask

import (
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"

	"github.com/jinford/pdf-rag/internal/core/collection"
	"github.com/jinford/pdf-rag/internal/core/search"
)

func TestBuildPrompt(t *testing.T) {
	chunks := []search.RetrievedChunk{
		{Chunk: collection.Chunk{Text: "Install with make install.", Page: mo.Some(1)}, Citation: "page 2"},
		{Chunk: collection.Chunk{Text: "Contact support.", Source: "a.pdf"}, Citation: "source: a.pdf"},
	}

	prompt := BuildPrompt("How do I install it?", chunks)

	assert.Contains(t, prompt, "ONLY the context")
	assert.Contains(t, prompt, NotInDocumentAnswer)
	assert.Contains(t, prompt, "### [Passage 1] (page 2)\nInstall with make install.")
	assert.Contains(t, prompt, "### [Passage 2] (source: a.pdf)\nContact support.")
	assert.Contains(t, prompt, "[1] page 2\n[2] source: a.pdf\n")
	assert.Contains(t, prompt, "## Question\nHow do I install it?\n")
	assert.True(t, strings.HasSuffix(prompt, "## Answer\n"))
	assert.Less(t, strings.Index(prompt, "Install with"), strings.Index(prompt, "Contact support"))
}

func TestBuildPromptWithoutPassages(t *testing.T) {
	prompt := BuildPrompt("Anything?", nil)

	assert.Contains(t, prompt, "(no passages found)")
	assert.Contains(t, prompt, NotInDocumentAnswer)
	assert.Contains(t, prompt, "Anything?")
}
