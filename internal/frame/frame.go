// Package frame holds the unit handed from the media receive path to detection.
package frame

import "image"

// Frame is one decoded video frame. Seq is the RTP timestamp the sender
// assigned; it increases monotonically but is not contiguous when frames are
// lost in transit.
type Frame struct {
	Seq   int64
	Image image.Image
}
