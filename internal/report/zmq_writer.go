package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"balltrack/internal/accuracy"
)

// Topic is the first frame of every message published by ZMQWriter.
const Topic = "accuracy"

// ZMQWriter publishes rows on a ZMQ PUB socket as two-frame messages: the
// topic and the CBOR-encoded row.
type ZMQWriter struct {
	mu     sync.Mutex
	socket *zmq4.Socket
}

// NewZMQWriter binds a PUB socket to endpoint, e.g. "tcp://*:5556".
func NewZMQWriter(endpoint string) (*ZMQWriter, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("create zmq socket: %w", err)
	}
	if err := socket.SetLinger(time.Second); err != nil {
		socket.Close()
		return nil, fmt.Errorf("set linger: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return &ZMQWriter{socket: socket}, nil
}

// Write publishes one row. Subscribers that are not connected miss it.
func (w *ZMQWriter) Write(row accuracy.Row) error {
	payload, err := MarshalRow(row)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.socket == nil {
		return fmt.Errorf("zmq writer closed")
	}
	_, err = w.socket.SendMessage(Topic, payload)
	return err
}

// Close closes the socket.
func (w *ZMQWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.socket == nil {
		return nil
	}
	err := w.socket.Close()
	w.socket = nil
	return err
}
