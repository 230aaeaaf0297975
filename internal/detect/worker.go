package detect

import (
	"context"
	"errors"
	"sync/atomic"

	"balltrack/internal/frame"
	"balltrack/internal/framequeue"
	"balltrack/internal/logging"
	"balltrack/internal/telemetry"
)

// Source yields frames; *framequeue.Queue satisfies it.
type Source interface {
	Pop(ctx context.Context) (frame.Frame, error)
}

// WorkerStats counts processed frames.
type WorkerStats struct {
	Processed uint64 `json:"processed"`
	Detected  uint64 `json:"detected"`
	Missed    uint64 `json:"missed"`
	Failed    uint64 `json:"failed"`
}

// Worker consumes frames, runs the detector and stores the first candidate of
// every successful detection in the shared state.
type Worker struct {
	src      Source
	detector Detector
	state    *telemetry.State

	processed atomic.Uint64
	detected  atomic.Uint64
	missed    atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker wires a worker between src and state.
func NewWorker(src Source, d Detector, state *telemetry.State) *Worker {
	return &Worker{src: src, detector: d, state: state}
}

// Run processes frames until the source is closed or ctx is cancelled. Both
// are normal termination and return nil.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("detection worker started")
	defer log.Info("detection worker stopped", "processed", w.processed.Load(), "detected", w.detected.Load())

	for {
		f, err := w.src.Pop(ctx)
		if err != nil {
			if errors.Is(err, framequeue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.process(ctx, f)
	}
}

func (w *Worker) process(ctx context.Context, f frame.Frame) {
	defer w.processed.Add(1)
	circles, err := w.detector.Detect(f.Image)
	if err != nil {
		w.failed.Add(1)
		logging.FromContext(ctx).Warn("detection failed", "seq", f.Seq, "error", err)
		return
	}
	if len(circles) == 0 {
		w.missed.Add(1)
		return
	}
	c := circles[0]
	w.state.Store(telemetry.Result{Seq: f.Seq, X: c.X, Y: c.Y})
	w.detected.Add(1)
}

// Stats returns the worker counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Processed: w.processed.Load(),
		Detected:  w.detected.Load(),
		Missed:    w.missed.Load(),
		Failed:    w.failed.Load(),
	}
}
