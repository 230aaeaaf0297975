// Package accuracy scores telemetry reported by the receiver against the
// sender's ground truth.
package accuracy

import (
	"context"
	"math"
	"sync"
	"time"

	"balltrack/internal/ledger"
	"balltrack/internal/logging"
	"balltrack/internal/telemetry"
)

// Row is one evaluated telemetry message.
type Row struct {
	SessionID string    `json:"session_id"`
	FrameNo   int64     `json:"frame_no"`
	TrueX     float64   `json:"true_x"`
	TrueY     float64   `json:"true_y"`
	ReportedX float64   `json:"reported_x"`
	ReportedY float64   `json:"reported_y"`
	Error     float64   `json:"error"`
	Matched   bool      `json:"matched"`
	Timestamp time.Time `json:"ts"`
}

// RowWriter receives every evaluated row.
type RowWriter interface {
	Write(row Row) error
}

// Summary aggregates evaluated rows.
type Summary struct {
	Evaluated   uint64  `json:"evaluated"`
	Matched     uint64  `json:"matched"`
	Unmatched   uint64  `json:"unmatched"`
	Malformed   uint64  `json:"malformed"`
	MeanError   float64 `json:"mean_error"`
	MaxError    float64 `json:"max_error"`
	LastError   float64 `json:"last_error"`
	LastFrameNo int64   `json:"last_frame_no"`
}

// Evaluator looks up reported frames in the ledger and computes the distance
// between truth and report.
type Evaluator struct {
	sessionID string
	ledger    *ledger.Ledger
	out       RowWriter
	now       func() time.Time

	mu       sync.Mutex
	summary  Summary
	errTotal float64
}

// NewEvaluator creates an evaluator. out may be nil.
func NewEvaluator(sessionID string, l *ledger.Ledger, out RowWriter) *Evaluator {
	return &Evaluator{
		sessionID: sessionID,
		ledger:    l,
		out:       out,
		now:       func() time.Time { return time.Now().UTC() },
		summary:   Summary{LastFrameNo: -1},
	}
}

// Distance is the Euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// Evaluate scores one message. A frame the ledger does not know, because it
// was never recorded or has left the window, yields an unmatched row.
func (e *Evaluator) Evaluate(m telemetry.Message) Row {
	row := Row{
		SessionID: e.sessionID,
		FrameNo:   m.FrameNo,
		ReportedX: m.X,
		ReportedY: m.Y,
		Timestamp: e.now(),
	}
	if rec, ok := e.ledger.Lookup(m.FrameNo); ok {
		row.TrueX, row.TrueY = rec.X, rec.Y
		row.Error = Distance(rec.X, rec.Y, m.X, m.Y)
		row.Matched = true
	}

	e.mu.Lock()
	e.summary.Evaluated++
	e.summary.LastFrameNo = m.FrameNo
	if row.Matched {
		e.summary.Matched++
		e.errTotal += row.Error
		e.summary.MeanError = e.errTotal / float64(e.summary.Matched)
		e.summary.LastError = row.Error
		if row.Error > e.summary.MaxError {
			e.summary.MaxError = row.Error
		}
	} else {
		e.summary.Unmatched++
	}
	e.mu.Unlock()
	return row
}

// HandlePayload decodes a control channel payload, evaluates it and hands the
// row to the writer. Malformed payloads and writer failures are logged and
// reported but never fatal to the caller.
func (e *Evaluator) HandlePayload(ctx context.Context, data []byte) (Row, error) {
	log := logging.FromContext(ctx)
	m, err := telemetry.Decode(data)
	if err != nil {
		e.mu.Lock()
		e.summary.Malformed++
		e.mu.Unlock()
		log.Warn("discarding telemetry", "error", err)
		return Row{}, err
	}
	row := e.Evaluate(m)
	if row.Matched {
		log.Info("telemetry evaluated", "frame_no", row.FrameNo,
			"true_x", row.TrueX, "true_y", row.TrueY,
			"reported_x", row.ReportedX, "reported_y", row.ReportedY,
			"error", row.Error)
	} else {
		log.Warn("telemetry unmatched", "frame_no", row.FrameNo)
	}
	if e.out != nil {
		if err := e.out.Write(row); err != nil {
			log.Error("failed to write accuracy row", "error", err)
		}
	}
	return row, nil
}

// Summary returns the running aggregate.
func (e *Evaluator) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}
