package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"balltrack/internal/accuracy"
)

// JSONStdoutWriter prints accuracy rows as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a row in JSON format.
func (w *JSONStdoutWriter) Write(row accuracy.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteBatch outputs multiple rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []accuracy.Row) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
