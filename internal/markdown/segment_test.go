package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	in := "Here's an example:\n\n```javascript\nconst x = 1;\n```\n\nThat's it."
	got := Split(in)
	assert.Equal(t, []Segment{
		{Text: "Here's an example:\n\n"},
		{Code: true, Lang: "javascript", Text: "const x = 1;"},
		{Text: "\n\nThat's it."},
	}, got)
}

func TestSplit_Edges(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Equal(t, []Segment{{Text: "plain"}}, Split("plain"))

	// no language tag
	assert.Equal(t, []Segment{{Code: true, Text: "x := 1"}}, Split("```\nx := 1\n```"))

	// unclosed fence
	got := Split("see\n```go\nfmt.Println()")
	assert.Len(t, got, 2)
	assert.Equal(t, Segment{Code: true, Lang: "go", Text: "fmt.Println()"}, got[1])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "Use [Code block] with bold and code", Preview("Use ```go\nx\n``` with **bold** and `code`"))
	assert.Equal(t, "one two", Preview("one\ntwo"))
	assert.Equal(t, "an italic word", Preview("an *italic* word"))

	long := strings.Repeat("word ", 20)
	p := Preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.LessOrEqual(t, len([]rune(p)), 63)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "héllo...", Truncate("héllo world", 6))
}

func TestRenderKeepsCode(t *testing.T) {
	r, err := NewRenderer(80, true)
	if err != nil {
		t.Fatal(err)
	}
	out := r.Render("Hi\n\n```go\nfmt.Println(\"x\")\n```")
	assert.Contains(t, out, "Println")
	assert.Contains(t, out, "Hi")
	assert.Empty(t, r.Render(""))
}
