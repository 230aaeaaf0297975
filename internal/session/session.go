// Package session owns one peer pairing: the signaling transport, the pion
// PeerConnection and every goroutine of the pipeline, driven by a single
// dispatch loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"balltrack/internal/accuracy"
	"balltrack/internal/config"
	"balltrack/internal/detect"
	"balltrack/internal/framequeue"
	"balltrack/internal/ledger"
	"balltrack/internal/logging"
	"balltrack/internal/media"
	"balltrack/internal/motion"
	"balltrack/internal/signaling"
	"balltrack/internal/telemetry"
)

// ChannelLabel names the control data channel.
const ChannelLabel = "chat"

const (
	eventBuffer       = 64
	byeTimeout        = time.Second
	channelCloseGrace = 2 * time.Second
)

// ErrClosed is returned by Run on a session that was already closed or run.
var ErrClosed = errors.New("session: closed")

// Options configures a session.
type Options struct {
	Role   config.Role
	Config *config.SessionConfig
	// ID identifies the session in logs and accuracy rows; a UUID when empty.
	ID string

	// Writer receives accuracy rows on the serving side.
	Writer accuracy.RowWriter

	// Detector overrides the client's circle detector.
	Detector detect.Detector
	// SaveFrames, when set, is a directory every SaveEvery-th received frame
	// is written to.
	SaveFrames string
	SaveEvery  int

	// IncludeLoopback gathers loopback ICE candidates, for hosts without any
	// other interface.
	IncludeLoopback bool
}

// Session is one peer pairing, built once and torn down once.
type Session struct {
	id   string
	role config.Role
	cfg  *config.SessionConfig
	opts Options

	sig     signaling.Signaling
	pc      *webrtc.PeerConnection
	machine *Machine
	local   *webrtc.DataChannel
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu      sync.Mutex
	g       *errgroup.Group
	gctx    context.Context
	running bool
	ran     bool
	runDone chan struct{}

	closeOnce sync.Once
	closeErr  error
	stopping  atomic.Bool

	// serving side
	ball        *motion.Ball
	ledger      *ledger.Ledger
	track       *webrtc.TrackLocalStaticRTP
	rtpSender   *webrtc.RTPSender
	trackWriter *media.TrackWriter
	evaluator   *accuracy.Evaluator
	framesOnce  sync.Once

	// client side
	queue     *framequeue.Queue
	state     *telemetry.State
	worker    *detect.Worker
	publisher atomic.Pointer[telemetry.Publisher]
	trackOnce sync.Once
	received  atomic.Uint64
}

// New builds the session and its PeerConnection over an already connected
// signaling transport. ctx only supplies the logger.
func New(ctx context.Context, sig signaling.Signaling, opts Options) (*Session, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	log := logging.FromContext(ctx).With("role", string(opts.Role), "session_id", opts.ID)

	api, err := media.NewAPI(logging.NewPionFactory(log), opts.IncludeLoopback)
	if err != nil {
		return nil, fmt.Errorf("build webrtc api: %w", err)
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(opts.Config.ICEServers)})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      opts.ID,
		role:    opts.Role,
		cfg:     opts.Config,
		opts:    opts,
		sig:     sig,
		pc:      pc,
		events:  make(chan Event, eventBuffer),
		ctx:     sctx,
		cancel:  cancel,
		log:     log,
		runDone: make(chan struct{}),
	}
	s.machine = NewMachine(&peer{pc: pc}, sig)

	switch opts.Role {
	case config.RoleServe:
		err = s.setupServe()
	case config.RoleClient:
		err = s.setupClient()
	default:
		err = fmt.Errorf("unknown role %q", opts.Role)
	}
	if err != nil {
		cancel()
		_ = pc.Close()
		return nil, err
	}

	s.local, err = pc.CreateDataChannel(ChannelLabel, nil)
	if err != nil {
		cancel()
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	s.watchChannel(s.local)

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(Event{Kind: EventPeerState, PeerState: st})
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.watchChannel(dc)
		s.post(Event{Kind: EventDataChannel, Channel: dc})
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.post(Event{Kind: EventTrack, Track: tr})
	})
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the negotiation state.
func (s *Session) State() State { return s.machine.State() }

// watchChannel turns channel callbacks into events. It runs before the
// channel can deliver anything so no message is missed.
func (s *Session) watchChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		s.post(Event{Kind: EventChannelOpen, Channel: dc})
	})
	dc.OnClose(func() {
		s.post(Event{Kind: EventChannelClosed, Channel: dc})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.post(Event{Kind: EventChannelMessage, Channel: dc, Payload: msg.Data})
	})
}

// post hands ev to the dispatch loop; it gives up once the session is done.
func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Run drives the session until bye, a fatal transport failure or ctx
// cancellation, then tears everything down and waits for every goroutine.
// Cancellation is a clean exit: a bye is sent to the remote and Run returns
// nil.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ran || s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ran = true
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	ctx = logging.NewContext(ctx, s.log)
	g, gctx := errgroup.WithContext(ctx)
	s.g, s.gctx = g, gctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.runDone)
	}()

	s.log.Info("session starting", "signaling", s.cfg.Signaling.Kind)
	g.Go(func() error { return s.readSignaling(gctx) })
	if s.role == config.RoleClient {
		g.Go(func() error { return s.worker.Run(gctx) })
	}

	s.post(Event{Kind: EventConnected})
	if s.role == config.RoleServe {
		s.post(Event{Kind: EventStart})
	}

	err := s.dispatch(gctx)
	if err == nil && !s.machine.State().Terminal() {
		s.sendBye()
		_ = s.machine.Dispatch(gctx, Event{Kind: EventBye})
	}

	s.shutdown()
	if werr := g.Wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	s.log.Info("session finished", "state", s.machine.State().String(), "error", err)
	return err
}

// sendBye tells the remote we are leaving. Failures are logged only.
func (s *Session) sendBye() {
	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	if err := s.sig.Send(ctx, signaling.Bye); err != nil {
		s.log.Warn("failed to send bye", "error", err)
		return
	}
	s.log.Info("sent bye")
}

// shutdown cancels every goroutine and releases the owned resources. The
// queue is closed first so a worker blocked on it returns.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		s.cancel()
		if s.queue != nil {
			s.queue.Close()
		}
		var errs []error
		if err := s.pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
		if s.sig != nil {
			if err := s.sig.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close signaling: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
}

// Close tears the session down and, if Run is active, waits for it to
// return. It is safe to call more than once and from any goroutine.
func (s *Session) Close() error {
	s.shutdown()
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.runDone
	}
	return s.closeErr
}

// goGroup starts fn on the session's errgroup.
func (s *Session) goGroup(fn func(ctx context.Context) error) {
	s.mu.Lock()
	g, ctx := s.g, s.gctx
	s.mu.Unlock()
	if g == nil {
		return
	}
	g.Go(func() error { return fn(ctx) })
}

func (s *Session) readSignaling(ctx context.Context) error {
	for {
		m, err := s.sig.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, signaling.ErrClosed) {
				return nil
			}
			if errors.Is(err, signaling.ErrMalformed) {
				s.log.Warn("ignoring signaling message", "error", err)
				continue
			}
			s.post(Event{Kind: EventTransportFailed, Err: fmt.Errorf("%w: signaling: %v", ErrTransport, err)})
			return nil
		}
		if m.Type == signaling.TypeBye {
			s.post(Event{Kind: EventBye})
			return nil
		}
		s.post(Event{Kind: EventRemoteDescription, Description: m})
	}
}

// dispatch handles events one at a time until the session ends.
func (s *Session) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			done, err := s.handle(ctx, ev)
			if err != nil || done {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) (bool, error) {
	switch ev.Kind {
	case EventConnected, EventStart, EventRemoteDescription:
		from := s.machine.State()
		err := s.machine.Dispatch(ctx, ev)
		switch {
		case errors.Is(err, ErrProtocol), errors.Is(err, ErrExchangeInFlight):
			s.log.Warn("ignoring event", "event", ev.Kind.String(), "state", from.String(), "error", err)
			return false, nil
		case err != nil:
			return true, err
		}
		if to := s.machine.State(); to != from {
			s.log.Info("state changed", "event", ev.Kind.String(), "from", from.String(), "to", to.String())
		}
		return false, nil

	case EventBye:
		_ = s.machine.Dispatch(ctx, ev)
		s.log.Info("received bye, exiting")
		return true, nil

	case EventTransportFailed:
		_ = s.machine.Dispatch(ctx, ev)
		s.log.Error("transport failed", "error", ev.Err)
		return true, ev.Err

	case EventPeerState:
		return s.handlePeerState(ctx, ev.PeerState)

	case EventDataChannel:
		s.log.Info("data channel is created", "label", ev.Channel.Label())
		return false, nil

	case EventChannelOpen:
		s.log.Info("channel is open", "label", ev.Channel.Label())
		if ev.Channel == s.local && s.role == config.RoleClient {
			s.startPublisher(ev.Channel)
		}
		return false, nil

	case EventChannelClosed:
		s.handleChannelClosed(ev.Channel)
		return false, nil

	case EventChannelMessage:
		s.handleChannelMessage(ctx, ev.Channel, ev.Payload)
		return false, nil

	case EventTrack:
		s.handleTrack(ev.Track)
		return false, nil
	}
	return false, nil
}

func (s *Session) handlePeerState(ctx context.Context, st webrtc.PeerConnectionState) (bool, error) {
	s.log.Info("peer connection state", "state", st.String())
	switch st {
	case webrtc.PeerConnectionStateConnected:
		if s.role == config.RoleServe {
			s.startFrames()
		}
	case webrtc.PeerConnectionStateFailed:
		err := fmt.Errorf("%w: peer connection failed", ErrTransport)
		_ = s.machine.Dispatch(ctx, Event{Kind: EventTransportFailed, Err: err})
		return true, err
	}
	return false, nil
}

// handleChannelClosed treats a control channel closing under a live session
// as fatal, after a grace period in which a bye may still arrive.
func (s *Session) handleChannelClosed(dc *webrtc.DataChannel) {
	if s.stopping.Load() || s.machine.State().Terminal() {
		return
	}
	s.log.Warn("channel closed", "label", dc.Label())
	time.AfterFunc(channelCloseGrace, func() {
		s.post(Event{Kind: EventTransportFailed, Err: fmt.Errorf("%w: data channel %q closed", ErrTransport, dc.Label())})
	})
}

func (s *Session) handleChannelMessage(ctx context.Context, dc *webrtc.DataChannel, payload []byte) {
	if s.role == config.RoleServe && dc != s.local {
		_, _ = s.evaluator.HandlePayload(ctx, payload)
		return
	}
	s.log.Debug("channel message", "label", dc.Label(), "payload", string(payload))
}

// Status is a point-in-time view of the session for the admin server.
type Status struct {
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`

	FramesSent    uint64            `json:"frames_sent,omitempty"`
	LedgerSize    int               `json:"ledger_size,omitempty"`
	LedgerEvicted uint64            `json:"ledger_evicted,omitempty"`
	Accuracy      *accuracy.Summary `json:"accuracy,omitempty"`

	FramesReceived uint64                    `json:"frames_received,omitempty"`
	Queue          *framequeue.Stats         `json:"queue,omitempty"`
	Worker         *detect.WorkerStats       `json:"worker,omitempty"`
	Latest         *telemetry.Message        `json:"latest,omitempty"`
	Publisher      *telemetry.PublisherStats `json:"publisher,omitempty"`
}

// Status reports the session counters. It is safe to call concurrently with
// Run.
func (s *Session) Status() Status {
	st := Status{
		Role:      string(s.role),
		SessionID: s.id,
		State:     s.machine.State().String(),
	}
	switch s.role {
	case config.RoleServe:
		st.FramesSent = s.trackWriter.Frames()
		st.LedgerSize = s.ledger.Len()
		st.LedgerEvicted = s.ledger.Evicted()
		sum := s.evaluator.Summary()
		st.Accuracy = &sum
	case config.RoleClient:
		st.FramesReceived = s.received.Load()
		qs := s.queue.Stats()
		st.Queue = &qs
		ws := s.worker.Stats()
		st.Worker = &ws
		if r, ok := s.state.Load(); ok {
			m := telemetry.NewMessage(r)
			st.Latest = &m
		}
		if p := s.publisher.Load(); p != nil {
			ps := p.Stats()
			st.Publisher = &ps
		}
	}
	return st
}
