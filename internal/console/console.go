// Package console prints the live agent transcript and loop banners to a
// terminal, colored when the destination is a TTY.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Style selects how a Line is rendered on a color terminal.
type Style int

const (
	Plain Style = iota
	Dim
	Bold
	Yellow
	Green
)

// ANSI escape codes
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func (s Style) prefix() string {
	switch s {
	case Dim:
		return ansiDim
	case Bold:
		return ansiBold
	case Yellow:
		return ansiYellow
	case Green:
		return ansiGreen
	default:
		return ""
	}
}

// Line is one formatted transcript line. Text may span several lines.
type Line struct {
	Style Style
	Text  string
}

// Styled builds a Line.
func Styled(s Style, format string, args ...any) Line {
	return Line{Style: s, Text: fmt.Sprintf(format, args...)}
}

// String returns the text without styling, as written to log files.
func (l Line) String() string {
	return l.Text
}

// Printer writes transcript lines and banners.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	width int
}

// New creates a printer for w. Color and width detection only apply when
// w is an *os.File attached to a terminal.
func New(w io.Writer) *Printer {
	p := &Printer{w: w}
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		p.color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		if p.color {
			if width, _, err := term.GetSize(int(fd)); err == nil && width > 0 {
				p.width = width
			}
		}
	}
	return p
}

// Stderr returns a printer for os.Stderr.
func Stderr() *Printer {
	return New(os.Stderr)
}

// Discard returns a printer that drops everything.
func Discard() *Printer {
	return &Printer{w: io.Discard}
}

// Print writes one transcript line.
func (p *Printer) Print(l Line) {
	text := l.Text
	if l.Style == Dim && !strings.Contains(text, "\n") {
		text = p.fit(text)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.color && l.Style != Plain {
		fmt.Fprintf(p.w, "%s%s%s\n", l.Style.prefix(), text, ansiReset)
		return
	}
	fmt.Fprintln(p.w, text)
}

// Header prints a bold cyan header line surrounded by blank lines.
func (p *Printer) Header(format string, args ...any) {
	text := fmt.Sprintf(format, args...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.color {
		fmt.Fprintf(p.w, "\n%s%s%s\n\n", ansiBold+ansiCyan, text, ansiReset)
	} else {
		fmt.Fprintf(p.w, "\n%s\n\n", text)
	}
}

// Status prints an indented dim status line.
func (p *Printer) Status(format string, args ...any) {
	text := fmt.Sprintf(format, args...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.color {
		fmt.Fprintf(p.w, "%s  %s%s\n", ansiDim, text, ansiReset)
	} else {
		fmt.Fprintf(p.w, "  %s\n", text)
	}
}

// fit truncates text to the terminal width. Width is measured in runes.
func (p *Printer) fit(text string) string {
	if p.width <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= p.width {
		return text
	}
	if p.width <= 3 {
		return string(r[:p.width])
	}
	return string(r[:p.width-3]) + "..."
}
