package media

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// fragmentHeaderLen is the per-packet header: fragment index and fragment
// count, both big endian uint16.
const fragmentHeaderLen = 4

var (
	ErrFrameTooLarge = errors.New("media: frame needs more than 65535 fragments")
	ErrShortPacket   = errors.New("media: packet shorter than fragment header")
	ErrBadFragment   = errors.New("media: fragment index out of range")
)

// FramePayloader splits an encoded frame into fragments. It implements
// rtp.Payloader.
type FramePayloader struct{}

// Payload implements rtp.Payloader.
func (FramePayloader) Payload(mtu uint16, payload []byte) [][]byte {
	chunk := int(mtu) - fragmentHeaderLen
	if chunk <= 0 || len(payload) == 0 {
		return nil
	}
	count := (len(payload) + chunk - 1) / chunk
	if count > 0xffff {
		return nil
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		end := (i + 1) * chunk
		if end > len(payload) {
			end = len(payload)
		}
		frag := make([]byte, fragmentHeaderLen+end-i*chunk)
		binary.BigEndian.PutUint16(frag[0:], uint16(i))
		binary.BigEndian.PutUint16(frag[2:], uint16(count))
		copy(frag[fragmentHeaderLen:], payload[i*chunk:end])
		out = append(out, frag)
	}
	return out
}

// Packetizer turns encoded frames into RTP packets stamped with an explicit
// timestamp.
type Packetizer struct {
	mtu       uint16
	payloader rtp.Payloader
	sequencer rtp.Sequencer
}

// NewPacketizer creates a packetizer for payloads of at most mtu bytes.
func NewPacketizer(mtu uint16) *Packetizer {
	if mtu <= fragmentHeaderLen {
		mtu = DefaultMTU
	}
	return &Packetizer{
		mtu:       mtu,
		payloader: FramePayloader{},
		sequencer: rtp.NewRandomSequencer(),
	}
}

// Packetize fragments payload into packets carrying timestamp ts. The last
// packet of the frame has the marker bit set.
func (p *Packetizer) Packetize(payload []byte, ts uint32) ([]*rtp.Packet, error) {
	chunk := int(p.mtu) - fragmentHeaderLen
	if (len(payload)+chunk-1)/chunk > 0xffff {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frags := p.payloader.Payload(p.mtu, payload)
	packets := make([]*rtp.Packet, len(frags))
	for i, frag := range frags {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    PayloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				Marker:         i == len(frags)-1,
			},
			Payload: frag,
		}
	}
	return packets, nil
}

// Depacketizer reassembles fragments into frames. Fragments of one frame share
// a timestamp; a frame still incomplete when the next timestamp shows up is
// dropped.
type Depacketizer struct {
	active   bool
	ts       uint32
	frags    [][]byte
	received int
	size     int

	dropped uint64
}

// Push adds one packet. When it completes a frame the reassembled payload and
// its timestamp are returned with ok set.
func (d *Depacketizer) Push(pkt *rtp.Packet) (payload []byte, ts uint32, ok bool, err error) {
	if len(pkt.Payload) < fragmentHeaderLen {
		return nil, 0, false, ErrShortPacket
	}
	index := int(binary.BigEndian.Uint16(pkt.Payload[0:]))
	count := int(binary.BigEndian.Uint16(pkt.Payload[2:]))
	if count == 0 || index >= count {
		return nil, 0, false, fmt.Errorf("%w: %d/%d", ErrBadFragment, index, count)
	}

	if !d.active || pkt.Timestamp != d.ts || count != len(d.frags) {
		if d.active {
			d.dropped++
		}
		d.active = true
		d.ts = pkt.Timestamp
		d.frags = make([][]byte, count)
		d.received = 0
		d.size = 0
	}
	if d.frags[index] == nil {
		body := append([]byte(nil), pkt.Payload[fragmentHeaderLen:]...)
		d.frags[index] = body
		d.received++
		d.size += len(body)
	}
	if d.received < len(d.frags) {
		return nil, 0, false, nil
	}

	out := make([]byte, 0, d.size)
	for _, f := range d.frags {
		out = append(out, f...)
	}
	d.active = false
	d.frags = nil
	return out, d.ts, true, nil
}

// Dropped returns how many partially received frames were abandoned.
func (d *Depacketizer) Dropped() uint64 {
	return d.dropped
}
