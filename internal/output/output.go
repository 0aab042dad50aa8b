// Package output provides consistent CLI output formatting. Decoration
// (icons, in-place progress) is suppressed when the destination is not a
// terminal so piped output stays machine-friendly.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/quarrylabs/quarry/internal/search"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out   io.Writer
	isTTY bool
}

// New creates a Writer. TTY detection runs when out is an *os.File.
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(*os.File); ok {
		w.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return w
}

// Stdout returns a Writer on standard output.
func Stdout() *Writer {
	return New(os.Stdout)
}

// Status prints a message with an icon. Icons are dropped off-terminal.
// Write errors are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" && w.isTTY {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✓", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("!", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("✗", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// KV prints an aligned key/value line for status output.
func (w *Writer) KV(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-18s %v\n", key+":", value)
}

// Results prints ranked search results: a header line per hit and the
// snippet indented under it.
func (w *Writer) Results(results []search.Result) {
	if len(results) == 0 {
		w.Status("", "no results")
		return
	}

	for i, r := range results {
		tag := ""
		if r.Confidence == search.ConfidenceLexical {
			tag = " [lexical]"
		}
		_, _ = fmt.Fprintf(w.out, "%d. %s:%d-%d (%.3f)%s\n",
			i+1, r.Path, r.StartLine, r.EndLine, r.Score, tag)

		for _, line := range strings.Split(strings.TrimRight(r.Snippet, "\n"), "\n") {
			_, _ = fmt.Fprintf(w.out, "   %s\n", line)
		}
		if i < len(results)-1 {
			_, _ = fmt.Fprintln(w.out)
		}
	}
}
