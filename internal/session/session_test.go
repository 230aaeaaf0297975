package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"balltrack/internal/accuracy"
	"balltrack/internal/config"
	"balltrack/internal/signaling"
)

func runAsync(s *Session, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func TestClientIgnoresMalformedOfferAndExitsOnBye(t *testing.T) {
	local, remoteEnd := signaling.Pipe()
	defer remoteEnd.Close()

	s, err := New(context.Background(), local, Options{Role: config.RoleClient})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := runAsync(s, context.Background())

	ctx := context.Background()
	if err := remoteEnd.Send(ctx, signaling.Message{Type: signaling.TypeOffer, SDP: "not an sdp"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := remoteEnd.Send(ctx, signaling.Bye); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state %s, want closed", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close after Run: %v", err)
	}
}

func TestSignalingLossIsFatal(t *testing.T) {
	local, remoteEnd := signaling.Pipe()
	s, err := New(context.Background(), local, Options{Role: config.RoleClient})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := runAsync(s, context.Background())

	time.Sleep(20 * time.Millisecond)
	remoteEnd.Close()
	if err := waitRun(t, done); !errors.Is(err, ErrTransport) {
		t.Fatalf("Run err=%v, want ErrTransport", err)
	}
	if s.State() != StateError {
		t.Fatalf("state %s, want error", s.State())
	}
}

func TestCloseStopsRunAndSendsBye(t *testing.T) {
	local, remoteEnd := signaling.Pipe()
	defer remoteEnd.Close()
	s, err := New(context.Background(), local, Options{Role: config.RoleClient})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(s, ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	m, err := remoteEnd.Receive(recvCtx)
	if err != nil || m.Type != signaling.TypeBye {
		t.Fatalf("expected bye, got %+v %v", m, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Run err=%v, want ErrClosed", err)
	}
}

func TestCloseFromAnotherGoroutine(t *testing.T) {
	local, remoteEnd := signaling.Pipe()
	defer remoteEnd.Close()
	s, err := New(context.Background(), local, Options{Role: config.RoleClient})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := runAsync(s, context.Background())
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return")
	}
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := s.Status(); st.Queue == nil || !st.Queue.Closed {
		t.Fatalf("queue not closed: %+v", st.Queue)
	}
}

type rowSink struct{ rows chan accuracy.Row }

func (r *rowSink) Write(row accuracy.Row) error {
	select {
	case r.rows <- row:
	default:
	}
	return nil
}

func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	cfg := config.Default()
	cfg.PublishInterval = 100 * time.Millisecond

	serverSig, clientSig := signaling.Pipe()
	sink := &rowSink{rows: make(chan accuracy.Row, 16)}

	server, err := New(context.Background(), serverSig, Options{
		Role: config.RoleServe, Config: cfg, Writer: sink, IncludeLoopback: true,
	})
	if err != nil {
		t.Fatalf("New server: %v", err)
	}
	client, err := New(context.Background(), clientSig, Options{
		Role: config.RoleClient, Config: cfg, IncludeLoopback: true,
	})
	if err != nil {
		t.Fatalf("New client: %v", err)
	}

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	serverDone := runAsync(server, serverCtx)
	clientDone := runAsync(client, context.Background())

	var row accuracy.Row
	select {
	case row = <-sink.rows:
	case <-time.After(20 * time.Second):
		server.Close()
		client.Close()
		t.Fatalf("no telemetry evaluated; server %+v client %+v", server.Status(), client.Status())
	}
	if !row.Matched {
		t.Fatalf("telemetry for frame %d did not match the ledger", row.FrameNo)
	}
	if row.Error > 3 {
		t.Fatalf("detection error %.2f too large: %+v", row.Error, row)
	}
	if row.SessionID != server.ID() {
		t.Fatalf("row session %q, want %q", row.SessionID, server.ID())
	}

	stopServer()
	if err := waitRun(t, serverDone); err != nil {
		t.Fatalf("server Run: %v", err)
	}
	if err := waitRun(t, clientDone); err != nil {
		t.Fatalf("client Run: %v", err)
	}
	if client.State() != StateClosed {
		t.Fatalf("client state %s, want closed", client.State())
	}
}
