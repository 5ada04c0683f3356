package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/suPer8Hu/subspace-chat/internal/viewstate"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2563EB")).
			Bold(true)
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0EA5E9"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F43F5E")).
			Bold(true)
)

// Printer serializes output so notices from background work do not
// interleave with the thread.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

func (p *Printer) Title(format string, args ...any) {
	p.line(titleStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) User(text string) {
	p.line(userStyle.Render("> ") + text)
}

func (p *Printer) Plain(text string) {
	p.line(text)
}

func (p *Printer) Dim(format string, args ...any) {
	p.line(dimStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	p.line(infoStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	p.line(errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Notify implements viewstate.Notifier.
func (p *Printer) Notify(n viewstate.Notice) {
	if n.Level == viewstate.LevelError {
		p.Error("✗ %s", n.Text)
		return
	}
	p.Info("✓ %s", n.Text)
}
