package signaling

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCPSignaling speaks newline delimited JSON over a TCP connection.
type TCPSignaling struct {
	conn net.Conn
	r    *bufio.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newTCPSignaling(conn net.Conn) *TCPSignaling {
	return &TCPSignaling{conn: conn, r: bufio.NewReader(conn), closed: make(chan struct{})}
}

// DialTCP connects to a listening peer.
func DialTCP(ctx context.Context, addr string) (*TCPSignaling, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial signaling %s: %w", addr, err)
	}
	return newTCPSignaling(conn), nil
}

// Send writes one message line.
func (s *TCPSignaling) Send(ctx context.Context, m Message) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	if _, err := s.conn.Write(data); err != nil {
		return s.mapErr(err)
	}
	return nil
}

// Receive reads the next message line.
func (s *TCPSignaling) Receive(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	line, err := s.r.ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			_ = s.conn.SetReadDeadline(time.Time{})
			return Message{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return decode(line)
		}
		return Message{}, s.mapErr(err)
	}
	return decode(line)
}

func (s *TCPSignaling) mapErr(err error) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}

// Close closes the connection. It is safe to call more than once.
func (s *TCPSignaling) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

// TCPListener waits for the dialling peer.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP binds addr.
func ListenTCP(ctx context.Context, addr string) (*TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen signaling %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept returns the next connected peer.
func (l *TCPListener) Accept(ctx context.Context) (Signaling, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return newTCPSignaling(r.conn), nil
	case <-ctx.Done():
		_ = l.ln.Close()
		if r := <-ch; r.conn != nil {
			_ = r.conn.Close()
		}
		return nil, ctx.Err()
	}
}

// Addr is the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops listening.
func (l *TCPListener) Close() error { return l.ln.Close() }
