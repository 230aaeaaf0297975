package session

import (
	"context"
	"fmt"
	"time"

	"balltrack/internal/accuracy"
	"balltrack/internal/ledger"
	"balltrack/internal/media"
	"balltrack/internal/motion"
)

func (s *Session) setupServe() error {
	s.ball = motion.NewBall(s.cfg.Canvas, s.cfg.Ball)
	s.ledger = ledger.New(s.cfg.LedgerWindow)
	s.evaluator = accuracy.NewEvaluator(s.id, s.ledger, s.opts.Writer)

	track, err := media.NewVideoTrack()
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}
	s.track = track
	s.rtpSender = sender
	s.trackWriter = media.NewTrackWriter(track, media.DefaultMTU)
	return nil
}

// startFrames launches the frame loop and the RTCP reader once the peer
// connection is up.
func (s *Session) startFrames() {
	s.framesOnce.Do(func() {
		s.goGroup(s.produceFrames)
		s.goGroup(s.drainRTCP)
	})
}

// produceFrames steps the ball once per tick, records the ground truth under
// the frame sequence and only then writes the frame to the track.
func (s *Session) produceFrames(ctx context.Context) error {
	interval := s.cfg.FrameInterval()
	step := media.TimestampStep(s.cfg.FPS)
	s.log.Info("streaming frames", "interval", interval, "canvas", fmt.Sprintf("%dx%d", s.cfg.Canvas.Width, s.cfg.Canvas.Height))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var index int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		index++
		seq := index * step
		pos := s.ball.Step()
		s.ledger.Record(seq, pos.X, pos.Y)
		if err := s.trackWriter.WriteFrame(seq, s.ball.Render()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.post(Event{Kind: EventTransportFailed, Err: fmt.Errorf("%w: write frame: %v", ErrTransport, err)})
			return nil
		}
	}
}

// drainRTCP reads RTCP for the outgoing track so interceptors keep working.
func (s *Session) drainRTCP(ctx context.Context) error {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.rtpSender.Read(buf); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Evaluator exposes the accuracy evaluator of a serving session.
func (s *Session) Evaluator() *accuracy.Evaluator { return s.evaluator }

// Ledger exposes the ground truth of a serving session.
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }
