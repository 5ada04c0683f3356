package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const fence = "```"

// Segment is a run of prose or one fenced code block.
type Segment struct {
	Code bool
	// Lang is the code block's language tag, empty when the fence has none.
	Lang string
	Text string
}

// Split cuts content on ``` fences. Segments alternate between prose and
// code, starting with prose; empty prose runs are dropped. An unclosed
// fence runs to the end of the content.
func Split(content string) []Segment {
	parts := strings.Split(content, fence)
	out := make([]Segment, 0, len(parts))
	for i, p := range parts {
		if i%2 == 0 {
			if strings.TrimSpace(p) != "" {
				out = append(out, Segment{Text: p})
			}
			continue
		}
		lang, body, found := strings.Cut(p, "\n")
		if !found {
			// ```inline``` on one line has no language
			out = append(out, Segment{Code: true, Text: p})
			continue
		}
		out = append(out, Segment{Code: true, Lang: strings.TrimSpace(lang), Text: strings.TrimSuffix(body, "\n")})
	}
	return out
}

// HasCode reports whether content contains a fenced block.
func HasCode(content string) bool {
	return strings.Contains(content, fence)
}

const previewLen = 60

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	boldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(.*?)\*`)
)

// Preview flattens content to one line of plain text for the conversation
// list, truncated to 60 characters.
func Preview(content string) string {
	s := codeBlockRe.ReplaceAllString(content, "[Code block]")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "\n", " ")
	return Truncate(s, previewLen)
}

// Truncate cuts s to n runes and marks the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
