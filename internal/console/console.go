// Package console prints command results, coloured only on a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Printer writes plain or styled lines to an output stream.
type Printer struct {
	w                  io.Writer
	green, yellow, red *color.Color
}

// New returns a Printer that styles output when w is an interactive terminal
// and NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return newPrinter(w, isTerminal(w) && os.Getenv("NO_COLOR") == "")
}

func newPrinter(w io.Writer, styled bool) *Printer {
	p := &Printer{
		w:      w,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.green, p.yellow, p.red} {
		if styled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printf writes an unstyled formatted line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Success writes a green line.
func (p *Printer) Success(format string, args ...any) {
	p.styled(p.green, format, args...)
}

// Warning writes a yellow line.
func (p *Printer) Warning(format string, args ...any) {
	p.styled(p.yellow, format, args...)
}

// Error writes a red line.
func (p *Printer) Error(format string, args ...any) {
	p.styled(p.red, format, args...)
}

// Rule writes a separator line.
func (p *Printer) Rule() {
	fmt.Fprintln(p.w, strings.Repeat("=", 60))
}

// Writer exposes the underlying stream, e.g. for tabular output.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) styled(c *color.Color, format string, args ...any) {
	fmt.Fprintln(p.w, c.Sprintf(format, args...))
}
