package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"balltrack/internal/logging"
)

// DefaultMaxBuffered is the data channel backlog above which a tick is skipped.
const DefaultMaxBuffered = 64 * 1024

// Channel is the part of a data channel the publisher needs.
type Channel interface {
	SendText(s string) error
	BufferedAmount() uint64
}

// PublisherStats counts what the publisher did per tick.
type PublisherStats struct {
	Sent           uint64 `json:"sent"`
	SkippedAbsent  uint64 `json:"skipped_absent"`
	SkippedBacklog uint64 `json:"skipped_backlog"`
	LastFrameNo    int64  `json:"last_frame_no"`
}

// Publisher periodically samples State and sends it over a Channel.
type Publisher struct {
	state       *State
	ch          Channel
	interval    time.Duration
	maxBuffered uint64

	sent           atomic.Uint64
	skippedAbsent  atomic.Uint64
	skippedBacklog atomic.Uint64
	lastFrameNo    atomic.Int64
}

// NewPublisher creates a publisher sending every interval.
func NewPublisher(state *State, ch Channel, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Publisher{
		state:       state,
		ch:          ch,
		interval:    interval,
		maxBuffered: DefaultMaxBuffered,
	}
	p.lastFrameNo.Store(-1)
	return p
}

// Run ticks until ctx is done. It returns a non-nil error only when a send
// fails, which means the channel is gone.
func (p *Publisher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting telemetry publisher", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping telemetry publisher", "sent", p.sent.Load())
			return nil
		case <-ticker.C:
			if _, err := p.Tick(); err != nil {
				return err
			}
		}
	}
}

// Tick performs one publish step and reports whether a message was sent.
func (p *Publisher) Tick() (bool, error) {
	r, ok := p.state.Load()
	if !ok {
		p.skippedAbsent.Add(1)
		return false, nil
	}
	if p.ch.BufferedAmount() > p.maxBuffered {
		p.skippedBacklog.Add(1)
		return false, nil
	}
	data, err := NewMessage(r).Encode()
	if err != nil {
		return false, fmt.Errorf("encode telemetry: %w", err)
	}
	if err := p.ch.SendText(string(data)); err != nil {
		return false, fmt.Errorf("send telemetry: %w", err)
	}
	p.sent.Add(1)
	p.lastFrameNo.Store(r.Seq)
	return true, nil
}

// Stats returns the publisher counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Sent:           p.sent.Load(),
		SkippedAbsent:  p.skippedAbsent.Load(),
		SkippedBacklog: p.skippedBacklog.Load(),
		LastFrameNo:    p.lastFrameNo.Load(),
	}
}
