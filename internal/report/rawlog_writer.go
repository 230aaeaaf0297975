package report

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"balltrack/internal/accuracy"
)

// rowEncMode keeps sub-second timestamps; the default CBOR mode truncates to
// whole seconds.
var rowEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// MarshalRow encodes a row as a CBOR map keyed by the JSON field names.
func MarshalRow(row accuracy.Row) ([]byte, error) {
	return rowEncMode.Marshal(row)
}

// UnmarshalRow decodes a row produced by MarshalRow.
func UnmarshalRow(data []byte) (accuracy.Row, error) {
	var row accuracy.Row
	err := cbor.Unmarshal(data, &row)
	return row, err
}

// RawLogWriter appends rows to a file as a CBOR sequence.
type RawLogWriter struct {
	mu   sync.Mutex
	file io.WriteCloser
	enc  *cbor.Encoder
}

// NewRawLogWriter creates (or truncates) path.
func NewRawLogWriter(path string) (*RawLogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &RawLogWriter{file: f, enc: rowEncMode.NewEncoder(f)}, nil
}

// Write appends one row.
func (w *RawLogWriter) Write(row accuracy.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(row)
}

// Close closes the log file.
func (w *RawLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
