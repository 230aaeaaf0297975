package signaling

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
)

func exchange(t *testing.T, server, client Signaling) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	offer := Message{Type: TypeOffer, SDP: "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\n"}
	if err := server.Send(ctx, offer); err != nil {
		t.Fatalf("Send offer: %v", err)
	}
	got, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive offer: %v", err)
	}
	if got != offer {
		t.Fatalf("got %+v, want %+v", got, offer)
	}

	answer := Message{Type: TypeAnswer, SDP: "v=0\r\n"}
	if err := client.Send(ctx, answer); err != nil {
		t.Fatalf("Send answer: %v", err)
	}
	if got, err = server.Receive(ctx); err != nil || got != answer {
		t.Fatalf("Receive answer: %+v %v", got, err)
	}

	if err := server.Send(ctx, Bye); err != nil {
		t.Fatalf("Send bye: %v", err)
	}
	if got, err = client.Receive(ctx); err != nil || got.Type != TypeBye {
		t.Fatalf("Receive bye: %+v %v", got, err)
	}
}

func listenAndDial(t *testing.T, kind string) (Signaling, Signaling, Listener) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln, err := Listen(ctx, kind, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	accepted := make(chan Signaling, 1)
	go func() {
		s, err := ln.Accept(ctx)
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
		accepted <- s
	}()
	client, err := Dial(ctx, kind, ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server := <-accepted
	if server == nil {
		t.FailNow()
	}
	return server, client, ln
}

func TestTCPExchange(t *testing.T) {
	server, client, ln := listenAndDial(t, KindTCP)
	defer ln.Close()
	defer server.Close()
	defer client.Close()
	exchange(t, server, client)
}

func TestWebSocketExchange(t *testing.T) {
	server, client, ln := listenAndDial(t, KindWebSocket)
	defer ln.Close()
	defer server.Close()
	defer client.Close()
	exchange(t, server, client)
}

func TestPipeExchange(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()
	exchange(t, a, b)
}

func TestTCPMalformedLineKeepsConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ln, err := ListenTCP(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("{not json\n{\"type\":\"answer\"}\n{\"type\":\"bye\"}\n"))
		time.Sleep(100 * time.Millisecond)
	}()

	s, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer s.Close()
	for i := 0; i < 2; i++ {
		if _, err := s.Receive(ctx); !errors.Is(err, ErrMalformed) {
			t.Fatalf("message %d: err=%v, want ErrMalformed", i, err)
		}
	}
	m, err := s.Receive(ctx)
	if err != nil || m.Type != TypeBye {
		t.Fatalf("Receive: %+v %v", m, err)
	}
	if _, err := s.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v, want EOF after peer hangs up", err)
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	defer test.CheckRoutines(t)()

	server, client, ln := listenAndDial(t, KindTCP)
	defer ln.Close()
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := client.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
}

func TestPipeCloseUnblocksPeer(t *testing.T) {
	a, b := Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	a.Close()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("err=%v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Receive still blocked")
	}
	if err := b.Send(context.Background(), Bye); !errors.Is(err, io.EOF) {
		t.Fatalf("Send to closed peer err=%v", err)
	}
	b.Close()
	if _, err := b.Receive(context.Background()); !errors.Is(err, ErrClosed) && !errors.Is(err, io.EOF) {
		t.Fatalf("Receive on closed end err=%v", err)
	}
}

func TestUnknownKind(t *testing.T) {
	if _, err := Dial(context.Background(), "carrier-pigeon", "x"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
}
