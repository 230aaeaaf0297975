// Package signaling exchanges session descriptions and the bye sentinel
// between the two peers.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Message types.
const (
	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeBye    = "bye"
)

// Transport kinds.
const (
	KindTCP       = "tcp-socket"
	KindWebSocket = "websocket"
)

var (
	// ErrClosed is returned once the local end has been closed.
	ErrClosed = errors.New("signaling: closed")
	// ErrMalformed marks a message that could not be parsed. The transport
	// stays usable.
	ErrMalformed = errors.New("signaling: malformed message")
	// ErrUnknownKind is returned for an unsupported transport kind.
	ErrUnknownKind = errors.New("signaling: unknown transport kind")
)

// Message is one signaling exchange. Bye carries no SDP.
type Message struct {
	Type string `json:"type"`
	SDP  string `json:"sdp,omitempty"`
}

// Bye is the termination sentinel.
var Bye = Message{Type: TypeBye}

// Signaling is a connected, bidirectional signaling transport. Send may be
// called concurrently with Receive.
type Signaling interface {
	Send(ctx context.Context, m Message) error
	// Receive blocks for the next message. io.EOF means the remote end went
	// away.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Listener accepts a single peer.
type Listener interface {
	Accept(ctx context.Context) (Signaling, error)
	Addr() net.Addr
	Close() error
}

func encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			return Message{}, fmt.Errorf("%w: %s without sdp", ErrMalformed, m.Type)
		}
	case TypeBye:
	default:
		return Message{}, fmt.Errorf("%w: type %q", ErrMalformed, m.Type)
	}
	return m, nil
}

// Listen opens the serving side of the given transport kind.
func Listen(ctx context.Context, kind, addr string) (Listener, error) {
	switch kind {
	case KindTCP, "":
		return ListenTCP(ctx, addr)
	case KindWebSocket:
		return ListenWebSocket(ctx, addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Dial connects the client side of the given transport kind.
func Dial(ctx context.Context, kind, addr string) (Signaling, error) {
	switch kind {
	case KindTCP, "":
		return DialTCP(ctx, addr)
	case KindWebSocket:
		return DialWebSocket(ctx, addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
