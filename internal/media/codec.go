// Package media carries rendered frames over WebRTC. Frames are PNG encoded
// and split across RTP packets of a private codec; the RTP timestamp is the
// frame sequence.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/pion/webrtc/v4"
)

const (
	MimeType    = "video/x-balltrack-png"
	PayloadType = 96
	ClockRate   = 90000

	// DefaultMTU bounds the RTP payload size.
	DefaultMTU = 1200
)

// Capability describes the frame codec.
func Capability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: MimeType, ClockRate: ClockRate}
}

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodeFrame serialises an image for transport.
func EncodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame parses a reassembled frame payload.
func DecodeFrame(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// TimestampStep is the RTP clock advance between consecutive frames.
func TimestampStep(fps int) int64 {
	if fps <= 0 {
		fps = 30
	}
	return ClockRate / int64(fps)
}
