// Package report delivers evaluated accuracy rows to stdout, files, GreptimeDB,
// ZMQ subscribers and the terminal UI.
package report

import "balltrack/internal/accuracy"

// Writer receives accuracy rows one at a time.
type Writer interface {
	Write(row accuracy.Row) error
}

// batchWriter is implemented by writers that can store several rows at once.
type batchWriter interface {
	WriteBatch(rows []accuracy.Row) error
}

// WriteBatch hands rows to w, using its batch path when it has one.
func WriteBatch(w Writer, rows []accuracy.Row) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
