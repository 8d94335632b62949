// File: internal/markdown/renderer_test.go
package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBasicMarkdown(t *testing.T) {
	r := NewRenderer()

	html, err := r.Render("**bold** and `code`")
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "<code>code</code>")
}

func TestRenderGFMTable(t *testing.T) {
	r := NewRenderer()

	html, err := r.Render("| a | b |\n|---|---|\n| 1 | 2 |")
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
}

func TestRenderEscapesRawHTML(t *testing.T) {
	r := NewRenderer()

	html, err := r.Render("<script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}
