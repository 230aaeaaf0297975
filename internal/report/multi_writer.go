package report

import (
	"errors"
	"io"

	"balltrack/internal/accuracy"
)

// MultiWriter fans rows out to several writers. A failing writer does not
// stop the others; their errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Writers returns the underlying writers.
func (mw *MultiWriter) Writers() []Writer { return mw.writers }

// Write sends a row to all writers.
func (mw *MultiWriter) Write(row accuracy.Row) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []accuracy.Row) error {
	var errs []error
	for _, w := range mw.writers {
		if err := WriteBatch(w, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
