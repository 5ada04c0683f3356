package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

// Renderer turns message content into terminal output.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

func NewRenderer(width int, dark bool) (*Renderer, error) {
	gr, err := glamour.NewTermRenderer(
		glamour.WithStyles(style(dark)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{glamour: gr, width: width}, nil
}

// Render renders content segment by segment so a broken block does not
// swallow the rest of the message. On error the raw text is kept.
func (r *Renderer) Render(content string) string {
	segs := Split(content)
	if len(segs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, seg := range segs {
		md := seg.Text
		if seg.Code {
			md = fence + seg.Lang + "\n" + seg.Text + "\n" + fence
		}
		out, err := r.glamour.Render(md)
		if err != nil {
			out = md
		}
		sb.WriteString(strings.Trim(out, "\n"))
		if i < len(segs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func style(dark bool) ansi.StyleConfig {
	s := styles.LightStyleConfig
	if dark {
		s = styles.DarkStyleConfig
	}
	zero := uint(0)
	s.Document.Margin = &zero
	s.CodeBlock.Margin = &zero
	s.Paragraph.BlockPrefix = ""
	s.Paragraph.BlockSuffix = ""
	return s
}
