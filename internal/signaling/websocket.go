package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Path is where the websocket signaling endpoint is served.
const Path = "/signal"

const writeWait = 10 * time.Second

// WSSignaling exchanges one JSON message per websocket text frame.
type WSSignaling struct {
	conn *websocket.Conn

	wmu       sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newWSSignaling(conn *websocket.Conn) *WSSignaling {
	conn.SetReadLimit(1 << 20)
	return &WSSignaling{conn: conn, closed: make(chan struct{})}
}

// DialWebSocket connects to a peer serving Path. addr is host:port or a full
// ws:// URL.
func DialWebSocket(ctx context.Context, addr string) (*WSSignaling, error) {
	url := addr
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		url = "ws://" + addr + Path
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling %s: %w", url, err)
	}
	return newWSSignaling(conn), nil
}

// Send writes one message.
func (s *WSSignaling) Send(ctx context.Context, m Message) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return s.mapErr(err)
	}
	return nil
}

// Receive reads the next text message. Non-text frames are skipped.
func (s *WSSignaling) Receive(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, s.mapErr(err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		return decode(data)
	}
}

func (s *WSSignaling) mapErr(err error) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}

// Close sends a close frame and closes the connection.
func (s *WSSignaling) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// WSListener serves Path and hands the first upgraded connection to Accept.
type WSListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	done     chan struct{}
	once     sync.Once
}

// ListenWebSocket starts an HTTP server on addr.
func ListenWebSocket(ctx context.Context, addr string) (*WSListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen signaling %s: %w", addr, err)
	}
	l := &WSListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan *websocket.Conn),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = l.srv.Serve(ln) }()
	return l, nil
}

func (l *WSListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

// Accept waits for a peer to connect.
func (l *WSListener) Accept(ctx context.Context) (Signaling, error) {
	select {
	case conn := <-l.conns:
		return newWSSignaling(conn), nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr is the bound address.
func (l *WSListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the HTTP server. Accepted connections stay open.
func (l *WSListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.srv.Shutdown(ctx)
	})
	return err
}
