package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"balltrack/internal/accuracy"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// Error bands in pixels used to colour rows.
const (
	goodError = 2.0
	fairError = 5.0
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ColorStdoutWriter prints accuracy rows using ANSI colours.
type ColorStdoutWriter struct {
	out  io.Writer
	once sync.Once
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{out: os.Stdout}
}

func errorColor(row accuracy.Row) string {
	switch {
	case !row.Matched:
		return colorGray
	case row.Error <= goodError:
		return colorGreen
	case row.Error <= fairError:
		return colorYellow
	default:
		return colorRed
	}
}

// formatRow renders one coloured line without a trailing newline.
func formatRow(row accuracy.Row) string {
	line := fmt.Sprintf("%s[%s]%s %sframe=%d%s %sreported=(%.1f,%.1f)%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, row.FrameNo, colorReset,
		colorCyan, row.ReportedX, row.ReportedY, colorReset)
	if !row.Matched {
		return line + fmt.Sprintf(" %sunmatched%s", colorGray, colorReset)
	}
	return line + fmt.Sprintf(" %strue=(%.1f,%.1f)%s %serror=%.2f%s",
		colorMagenta, row.TrueX, row.TrueY, colorReset,
		errorColor(row), row.Error, colorReset)
}

// Write outputs a single row in colourised format. The session id is printed
// once, before the first row.
func (w *ColorStdoutWriter) Write(row accuracy.Row) error {
	w.once.Do(func() {
		fmt.Fprintf(w.out, "%ssession %s%s\n", colorYellow, row.SessionID, colorReset)
	})
	_, err := fmt.Fprintln(w.out, formatRow(row))
	return err
}

// WriteBatch outputs multiple rows.
func (w *ColorStdoutWriter) WriteBatch(rows []accuracy.Row) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
