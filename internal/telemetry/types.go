// Telemetry wire types exchanged over the control channel
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks a control channel payload that is not a valid Message.
var ErrMalformed = errors.New("telemetry: malformed message")

// Result is one completed detection: the frame it came from and the centre
// found in it.
type Result struct {
	Seq int64
	X   float64
	Y   float64
}

// Message is the JSON form of a Result sent over the control channel.
type Message struct {
	FrameNo int64   `json:"frame_no"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// NewMessage converts a detection result to its wire form.
func NewMessage(r Result) Message {
	return Message{FrameNo: r.Seq, X: r.X, Y: r.Y}
}

// Result converts the message back to a detection result.
func (m Message) Result() Result {
	return Result{Seq: m.FrameNo, X: m.X, Y: m.Y}
}

// Encode serialises the message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a control channel payload. All three fields are required.
func Decode(data []byte) (Message, error) {
	var raw struct {
		FrameNo *int64   `json:"frame_no"`
		X       *float64 `json:"x"`
		Y       *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.FrameNo == nil || raw.X == nil || raw.Y == nil {
		return Message{}, fmt.Errorf("%w: missing field in %q", ErrMalformed, data)
	}
	return Message{FrameNo: *raw.FrameNo, X: *raw.X, Y: *raw.Y}, nil
}
