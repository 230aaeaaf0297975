package media

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"

	"balltrack/internal/frame"
)

// RTPWriter accepts packets; *webrtc.TrackLocalStaticRTP satisfies it.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// RTPReader yields packets; *webrtc.TrackRemote satisfies it.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// TrackWriter encodes frames onto an outgoing track.
type TrackWriter struct {
	dst  RTPWriter
	pack *Packetizer

	frames  atomic.Uint64
	packets atomic.Uint64
}

// NewTrackWriter creates a writer emitting packets of at most mtu bytes.
func NewTrackWriter(dst RTPWriter, mtu uint16) *TrackWriter {
	return &TrackWriter{dst: dst, pack: NewPacketizer(mtu)}
}

// WriteFrame sends img under sequence seq. The RTP timestamp carries the low
// 32 bits of seq.
func (w *TrackWriter) WriteFrame(seq int64, img image.Image) error {
	data, err := EncodeFrame(img)
	if err != nil {
		return err
	}
	packets, err := w.pack.Packetize(data, uint32(seq))
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := w.dst.WriteRTP(p); err != nil {
			return fmt.Errorf("write rtp: %w", err)
		}
	}
	w.frames.Add(1)
	w.packets.Add(uint64(len(packets)))
	return nil
}

// Frames returns how many frames were written.
func (w *TrackWriter) Frames() uint64 { return w.frames.Load() }

// FrameReader reassembles and decodes frames from an incoming track.
type FrameReader struct {
	src    RTPReader
	depack Depacketizer

	started bool
	lastTS  uint32
	epoch   int64

	corrupt uint64
}

// NewFrameReader reads frames from src.
func NewFrameReader(src RTPReader) *FrameReader {
	return &FrameReader{src: src}
}

// ReadFrame blocks until the next complete frame. Fragments that cannot be
// parsed and frames that fail to decode are skipped; an error from the
// underlying track ends the stream and is returned as is.
func (r *FrameReader) ReadFrame() (frame.Frame, error) {
	for {
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			return frame.Frame{}, err
		}
		payload, ts, ok, err := r.depack.Push(pkt)
		if err != nil {
			if errors.Is(err, ErrShortPacket) || errors.Is(err, ErrBadFragment) {
				r.corrupt++
				continue
			}
			return frame.Frame{}, err
		}
		if !ok {
			continue
		}
		img, err := DecodeFrame(payload)
		if err != nil {
			r.corrupt++
			continue
		}
		return frame.Frame{Seq: r.unwrap(ts), Image: img}, nil
	}
}

// unwrap extends a 32 bit timestamp to the sender's 64 bit sequence.
func (r *FrameReader) unwrap(ts uint32) int64 {
	if r.started && ts < r.lastTS && r.lastTS-ts > 1<<31 {
		r.epoch++
	}
	r.started = true
	r.lastTS = ts
	return r.epoch<<32 | int64(ts)
}

// Dropped returns incomplete frames abandoned during reassembly.
func (r *FrameReader) Dropped() uint64 { return r.depack.Dropped() }

// Corrupt returns packets or frames that could not be parsed.
func (r *FrameReader) Corrupt() uint64 { return r.corrupt }

// SaveFrame writes f as dir/frame-<seq>.png.
func SaveFrame(dir string, f frame.Frame) (string, error) {
	data, err := EncodeFrame(f.Image)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%010d.png", f.Seq))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
