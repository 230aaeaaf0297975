package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"balltrack/internal/signaling"
)

var (
	// ErrProtocol marks an unexpected or malformed session description. The
	// message is ignored and the state is unchanged.
	ErrProtocol = errors.New("session: protocol error")
	// ErrExchangeInFlight rejects a second local offer while one is pending.
	ErrExchangeInFlight = errors.New("session: description exchange already in flight")
	// ErrTransport is the fatal failure of the signaling transport, the peer
	// connection or the control channel.
	ErrTransport = errors.New("session: transport failure")
)

// State is the negotiation state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateNegotiating
	StateOpen
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// EventKind enumerates everything the session reacts to.
type EventKind int

const (
	// EventConnected: the signaling transport is up.
	EventConnected EventKind = iota
	// EventStart: begin the exchange as initiator.
	EventStart
	// EventRemoteDescription: an offer or answer arrived over signaling.
	EventRemoteDescription
	// EventBye: the remote sent the termination sentinel.
	EventBye
	// EventTransportFailed: a transport or channel failed; Err says why.
	EventTransportFailed
	// EventPeerState: the peer connection changed state.
	EventPeerState
	// EventTrack: a remote media track arrived.
	EventTrack
	// EventDataChannel: the remote created a data channel.
	EventDataChannel
	// EventChannelOpen, EventChannelClosed and EventChannelMessage report on
	// a data channel, local or remote.
	EventChannelOpen
	EventChannelClosed
	EventChannelMessage
)

var eventNames = map[EventKind]string{
	EventConnected:         "connected",
	EventStart:             "start",
	EventRemoteDescription: "remote-description",
	EventBye:               "bye",
	EventTransportFailed:   "transport-failed",
	EventPeerState:         "peer-state",
	EventTrack:             "track",
	EventDataChannel:       "data-channel",
	EventChannelOpen:       "channel-open",
	EventChannelClosed:     "channel-closed",
	EventChannelMessage:    "channel-message",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one input to the dispatch loop. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind        EventKind
	Description signaling.Message
	Err         error
	PeerState   webrtc.PeerConnectionState
	Track       *webrtc.TrackRemote
	Channel     *webrtc.DataChannel
	Payload     []byte
}

// Negotiator produces and applies session descriptions.
type Negotiator interface {
	// Offer creates the local offer and returns it once candidates are
	// gathered.
	Offer(ctx context.Context) (string, error)
	// Answer does the same for an answer to the applied remote offer.
	Answer(ctx context.Context) (string, error)
	// Apply sets the remote description.
	Apply(typ, sdp string) error
}

// Sender delivers signaling messages to the remote peer.
type Sender interface {
	Send(ctx context.Context, m signaling.Message) error
}

// Machine drives the offer/answer exchange. Dispatch is called from a single
// goroutine; State may be read from anywhere.
type Machine struct {
	neg Negotiator
	out Sender

	mu       sync.Mutex
	state    State
	inFlight bool
}

// NewMachine returns a machine in StateIdle.
func NewMachine(neg Negotiator, out Sender) *Machine {
	return &Machine{neg: neg, out: out}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) set(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Dispatch applies one negotiation event. Errors wrapping ErrProtocol or
// ErrExchangeInFlight leave the state untouched and are not fatal; any other
// error moves the machine to StateError.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	cur := m.State()
	if cur.Terminal() {
		return fmt.Errorf("%w: %s after %s", ErrProtocol, ev.Kind, cur)
	}

	switch ev.Kind {
	case EventConnected:
		if cur != StateIdle {
			return fmt.Errorf("%w: connected while %s", ErrProtocol, cur)
		}
		m.set(StateConnecting)
		return nil

	case EventStart:
		if m.inFlight {
			return ErrExchangeInFlight
		}
		if cur != StateConnecting {
			return fmt.Errorf("%w: start while %s", ErrProtocol, cur)
		}
		sdp, err := m.neg.Offer(ctx)
		if err != nil {
			return m.fail(fmt.Errorf("create offer: %w", err))
		}
		m.inFlight = true
		m.set(StateNegotiating)
		if err := m.out.Send(ctx, signaling.Message{Type: signaling.TypeOffer, SDP: sdp}); err != nil {
			return m.fail(fmt.Errorf("%w: send offer: %v", ErrTransport, err))
		}
		return nil

	case EventRemoteDescription:
		return m.remoteDescription(ctx, cur, ev.Description)

	case EventBye:
		m.inFlight = false
		m.set(StateClosed)
		return nil

	case EventTransportFailed:
		m.inFlight = false
		m.set(StateError)
		return nil

	default:
		return fmt.Errorf("%w: %s is not a negotiation event", ErrProtocol, ev.Kind)
	}
}

func (m *Machine) remoteDescription(ctx context.Context, cur State, d signaling.Message) error {
	switch d.Type {
	case signaling.TypeOffer:
		// an offer during StateOpen is a renegotiation
		if err := m.neg.Apply(d.Type, d.SDP); err != nil {
			return fmt.Errorf("%w: apply offer: %v", ErrProtocol, err)
		}
		sdp, err := m.neg.Answer(ctx)
		if err != nil {
			return m.fail(fmt.Errorf("create answer: %w", err))
		}
		if err := m.out.Send(ctx, signaling.Message{Type: signaling.TypeAnswer, SDP: sdp}); err != nil {
			return m.fail(fmt.Errorf("%w: send answer: %v", ErrTransport, err))
		}
		m.inFlight = false
		m.set(StateOpen)
		return nil

	case signaling.TypeAnswer:
		if cur != StateNegotiating || !m.inFlight {
			return fmt.Errorf("%w: answer while %s", ErrProtocol, cur)
		}
		if err := m.neg.Apply(d.Type, d.SDP); err != nil {
			return fmt.Errorf("%w: apply answer: %v", ErrProtocol, err)
		}
		m.inFlight = false
		m.set(StateOpen)
		return nil

	default:
		return fmt.Errorf("%w: description type %q", ErrProtocol, d.Type)
	}
}

func (m *Machine) fail(err error) error {
	m.inFlight = false
	m.set(StateError)
	return err
}
