package report

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"balltrack/internal/accuracy"
)

// rowDecoder is satisfied by both json.Decoder and cbor.Decoder.
type rowDecoder interface {
	Decode(v any) error
}

// ReplayLog replays JSONL accuracy rows from r to writer. A speed >0 scales
// the recorded spacing between rows; speed <= 0 replays without delay.
func ReplayLog(r io.Reader, writer Writer, speed float64) error {
	return replay(json.NewDecoder(r), writer, speed)
}

// ReplayRawLog replays a CBOR sequence written by RawLogWriter.
func ReplayRawLog(r io.Reader, writer Writer, speed float64) error {
	return replay(cbor.NewDecoder(r), writer, speed)
}

func replay(dec rowDecoder, writer Writer, speed float64) error {
	var prev time.Time
	for {
		var row accuracy.Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens path and replays its rows. Files ending in .cbor are
// read as raw logs, everything else as JSONL.
func ReplayLogFile(path string, writer Writer, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if filepath.Ext(path) == ".cbor" {
		return ReplayRawLog(f, writer, speed)
	}
	return ReplayLog(f, writer, speed)
}
