package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"

	"balltrack/internal/config"
	"balltrack/internal/detect"
	"balltrack/internal/framequeue"
	"balltrack/internal/media"
	"balltrack/internal/telemetry"
)

func (s *Session) setupClient() error {
	s.queue = framequeue.New(s.cfg.QueueDepth)
	s.state = &telemetry.State{}
	d := s.opts.Detector
	if d == nil {
		d = detect.NewHoughDetector(s.cfg.Detector)
	}
	s.worker = detect.NewWorker(s.queue, d, s.state)

	if s.opts.SaveFrames != "" {
		if err := os.MkdirAll(s.opts.SaveFrames, 0o755); err != nil {
			return fmt.Errorf("create frame directory: %w", err)
		}
	}
	return nil
}

func (s *Session) handleTrack(tr *webrtc.TrackRemote) {
	if s.role != config.RoleClient {
		s.log.Warn("ignoring remote track", "kind", tr.Kind().String())
		return
	}
	mime := tr.Codec().MimeType
	if !strings.EqualFold(mime, media.MimeType) {
		s.log.Warn("ignoring track with unsupported codec", "mime", mime)
		return
	}
	started := false
	s.trackOnce.Do(func() {
		started = true
		s.log.Info("receiving track", "kind", tr.Kind().String(), "ssrc", uint32(tr.SSRC()))
		s.goGroup(func(ctx context.Context) error { return s.receiveFrames(ctx, tr) })
	})
	if !started {
		s.log.Warn("ignoring additional track", "ssrc", uint32(tr.SSRC()))
	}
}

// receiveFrames decodes frames off the track and hands them to the queue. It
// never waits on detection.
func (s *Session) receiveFrames(ctx context.Context, tr *webrtc.TrackRemote) error {
	r := media.NewFrameReader(tr)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || s.stopping.Load() || errors.Is(err, io.EOF) {
				s.log.Info("track ended", "frames", s.received.Load(), "dropped", r.Dropped(), "corrupt", r.Corrupt())
				return nil
			}
			s.post(Event{Kind: EventTransportFailed, Err: fmt.Errorf("%w: read track: %v", ErrTransport, err)})
			return nil
		}
		n := s.received.Add(1)
		if !s.queue.Push(f) {
			s.log.Debug("frame queue full, dropped oldest", "seq", f.Seq)
		}
		if s.opts.SaveFrames != "" && s.opts.SaveEvery > 0 && n%uint64(s.opts.SaveEvery) == 0 {
			if _, err := media.SaveFrame(s.opts.SaveFrames, f); err != nil {
				s.log.Warn("failed to save frame", "seq", f.Seq, "error", err)
			}
		}
	}
}

// startPublisher begins periodic telemetry on the local control channel.
func (s *Session) startPublisher(dc *webrtc.DataChannel) {
	p := telemetry.NewPublisher(s.state, dc, s.cfg.PublishInterval)
	if !s.publisher.CompareAndSwap(nil, p) {
		return
	}
	s.goGroup(func(ctx context.Context) error {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			s.post(Event{Kind: EventTransportFailed, Err: fmt.Errorf("%w: %v", ErrTransport, err)})
		}
		return nil
	})
}

// DetectionState exposes the shared detection slot of a client session.
func (s *Session) DetectionState() *telemetry.State { return s.state }
